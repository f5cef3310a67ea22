package pool

import (
	"testing"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/poolwire"
)

func TestIndexRegisterThenList(t *testing.T) {
	network := netx.NewPipeNetwork("pool")
	idx := New(Config{
		Network:          network,
		RequestedDelay:   1,
		DeprecationDelay: 30,
		GCCycle:          10,
	})

	go func() {
		_ = idx.Start()
	}()
	t.Cleanup(idx.Stop)
	time.Sleep(10 * time.Millisecond)

	delay, err := poolwire.Register(network, "pool", time.Second, poolwire.NodeEndpoint{Host: "127.0.2.1", Port: 6001})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if delay != time.Second {
		t.Fatalf("expected requested delay of 1s, got %s", delay)
	}

	nodes, err := poolwire.List(network, "pool", time.Second)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Host != "127.0.2.1" || nodes[0].Port != 6001 {
		t.Fatalf("unexpected node list: %v", nodes)
	}
}

func TestIndexEvictsStaleNodesOnGCCycle(t *testing.T) {
	network := netx.NewPipeNetwork("pool")
	idx := New(Config{
		Network:          network,
		RequestedDelay:   1,
		DeprecationDelay: 0.06,
		GCCycle:          0.02,
	})

	go func() {
		_ = idx.Start()
	}()
	t.Cleanup(idx.Stop)
	time.Sleep(10 * time.Millisecond)

	if _, err := poolwire.Register(network, "pool", time.Second, poolwire.NodeEndpoint{Host: "127.0.2.1", Port: 6001}); err != nil {
		t.Fatalf("register: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	nodes, err := poolwire.List(network, "pool", time.Second)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected stale node to be evicted, got %v", nodes)
	}
}
