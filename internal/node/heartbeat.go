package node

import (
	"strings"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/poolwire"
)

// heartbeatLoop is node.py's _send_heartbeats: register-or-heartbeat
// with the configured pool index on a loop, rescheduling at whatever
// delay the index last requested, or HeartbeatDefaultDelay on failure.
// Failures are logged, never fatal — the node keeps serving regardless
// (spec §4.1).
func (n *Node) heartbeatLoop() {
	delay := n.cfg.HeartbeatDefaultDelay
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(delay):
		}

		if n.cfg.PoolIndexAddr == "" {
			delay = n.cfg.HeartbeatDefaultDelay
			continue
		}

		requested, err := poolwire.Register(n.cfg.Network, n.cfg.PoolIndexAddr, 5*time.Second, n.self())
		if err != nil {
			n.metrics.HeartbeatsFailed.Add(1)
			n.logf("heartbeat failed: %v, next try in %s", err, n.cfg.HeartbeatDefaultDelay)
			delay = n.cfg.HeartbeatDefaultDelay
			continue
		}
		n.metrics.HeartbeatsSent.Add(1)
		n.logf("heartbeat sent, next heartbeat in %s", requested)
		delay = requested
	}
}

func (n *Node) self() poolwire.NodeEndpoint {
	host := n.cfg.Host
	if host == "" {
		host = hostOfBind(n.bindAddr)
	}
	return poolwire.NodeEndpoint{Host: host, Port: n.cfg.Port}
}

func hostOfBind(addr netx.Addr) string {
	s := string(addr)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[:i]
	}
	return s
}
