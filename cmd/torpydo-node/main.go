package main

import (
	"flag"
	"log"
	"os"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/node"
	"torpydo/internal/storage/sessionlog"
)

func main() {
	host := flag.String("host", "0.0.0.0", "listen address")
	port := flag.Int("port", 6000, "listen TCP port")
	poolIndex := flag.String("pool-index", "", "pool index address (host:port), empty disables heartbeats")
	sessionDB := flag.String("session-log", "", "path to a bbolt session audit log, empty disables it")
	debug := flag.Bool("debug", false, "log diagnostic output to stdout")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	var sessionLog *sessionlog.Store
	if *sessionDB != "" {
		store, err := sessionlog.Open(*sessionDB)
		if err != nil {
			log.Fatalf("open session log: %v", err)
		}
		defer store.Close()
		sessionLog = store
	}

	n := node.New(node.Config{
		Host:             *host,
		Port:             uint16(*port),
		Network:          netx.NewTCPNetwork(),
		Logger:           logger,
		Debug:            *debug,
		HandshakeTimeout: 10 * time.Second,
		PoolIndexAddr:    netx.Addr(*poolIndex),
		SessionLog:       sessionLog,
	})

	log.Printf("torpydo-node starting on %s:%d", *host, *port)
	if err := n.Start(); err != nil {
		log.Fatalf("start node: %v", err)
	}
}
