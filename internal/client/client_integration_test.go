package client

import (
	"net"
	"testing"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/node"
)

// startEchoServer runs a bare TCP listener that echoes back whatever it
// reads, standing in for spec §8 scenario 1's "echo TCP server at
// 127.0.0.1:9000".
func startEchoServer(t *testing.T) netx.Addr {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start echo server: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 4096)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						if _, werr := conn.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	return netx.Addr(ln.Addr().String())
}

func startTestNode(t *testing.T) netx.Addr {
	n := node.New(node.Config{Network: netx.NewTCPNetwork(), HandshakeTimeout: 2 * time.Second})
	go func() { _ = n.Start() }()
	t.Cleanup(func() { _ = n.Stop() })
	return n.ListenAddr()
}

// TestThreeHopRoundTrip builds a 2-intermediate-hop circuit through two
// Torpydo nodes to a plain TCP echo server (three network legs:
// client-node1, node1-node2, node2-echo) and confirms data survives the
// round trip with two layers of encryption, one per node, applied and
// peeled off in the right order (spec §8 scenario 1, invariant 2).
func TestThreeHopRoundTrip(t *testing.T) {
	node1Addr := startTestNode(t)
	node2Addr := startTestNode(t)
	echoAddr := startEchoServer(t)

	c := New(Config{Network: netx.NewTCPNetwork(), HandshakeTimeout: 2 * time.Second})
	defer c.Close()

	host1, port1 := splitAddr(node1Addr)
	if err := c.Connect(host1, port1); err != nil {
		t.Fatalf("connect: %v", err)
	}

	host2, port2 := splitAddr(node2Addr)
	if err := c.NextDestination(host2, port2); err != nil {
		t.Fatalf("next_destination hop2: %v", err)
	}

	echoHost, echoPort := splitAddr(echoAddr)
	if err := c.NextDestination(echoHost, echoPort); err != nil {
		t.Fatalf("next_destination dest: %v", err)
	}

	if len(c.path) != 2 {
		t.Fatalf("expected a 2-hop path, got %d hops", len(c.path))
	}

	if err := c.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := c.ReceiveExactly(4)
	if err != nil {
		t.Fatalf("receive_exactly: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("expected echoed %q, got %q", "ping", got)
	}
}

func TestRandomPathToDestinationFailsWithoutEnoughKnownNodes(t *testing.T) {
	c := New(Config{Network: netx.NewTCPNetwork()})
	c.known["127.0.0.1:1"] = struct{}{}

	if err := c.RandomPathToDestination("127.0.0.1", 9000, 2); err == nil {
		t.Fatalf("expected a path-build error with only one known node")
	}
	if c.conn != nil {
		t.Fatalf("no socket should have been opened when selection fails up front")
	}
}
