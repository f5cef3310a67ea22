package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"torpydo/internal/netx"
	"torpydo/internal/pool"
)

func main() {
	host := flag.String("host", "0.0.0.0", "listen address")
	port := flag.Int("port", 8080, "listen TCP port")
	requestedDelay := flag.Float64("requested-delay", 15, "heartbeat cadence requested of nodes, seconds")
	deprecationDelay := flag.Float64("deprecation-delay", 30, "seconds without a heartbeat before a node is evicted")
	gcCycle := flag.Float64("gc-cycle", 10, "garbage collector sweep interval, seconds")
	debug := flag.Bool("debug", false, "log diagnostic output to stdout")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	idx := pool.New(pool.Config{
		BindAddr:         fmt.Sprintf("%s:%d", *host, *port),
		Network:          netx.NewTCPNetwork(),
		Logger:           logger,
		Debug:            *debug,
		RequestedDelay:   *requestedDelay,
		DeprecationDelay: *deprecationDelay,
		GCCycle:          *gcCycle,
	})

	log.Printf("torpydo-pool starting on %s:%d", *host, *port)
	if err := idx.Start(); err != nil {
		log.Fatalf("start pool index: %v", err)
	}
}

