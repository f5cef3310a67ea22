package node

import (
	"sync"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/storage/sessionlog"
	"torpydo/internal/tpdp"
)

// handleConn is node.py's _handle_connection: attempt a handshake with
// the new source, and on success route bytes until either side closes
// or the handshake fails; otherwise just close.
func (n *Node) handleConn(source netx.Conn) {
	defer source.Close()

	sessionID := n.nextSessionID()
	sourceAddr := source.RemoteAddr()
	n.logf("new connection from %s", sourceAddr)

	result, err := tpdp.ServerHandshake(source, n.cfg.Network, n.cfg.HandshakeTimeout)
	if err != nil {
		n.metrics.HandshakesFailed.Add(1)
		n.logf("handshake with %s failed: %v", sourceAddr, err)
		n.recordSession(sessionlog.Record{
			SessionID:     sessionID,
			SourceAddr:    string(sourceAddr),
			OpenedAt:      time.Now(),
			ClosedAt:      time.Now(),
			FailureReason: err.Error(),
		})
		return
	}
	n.metrics.HandshakesOK.Add(1)
	n.metrics.SessionsOpened.Add(1)
	defer result.Destination.Close()
	defer result.Hop.Zero()

	n.logf("session %s: %s -> %s:%d established", sessionID, sourceAddr, result.DestHost, result.DestPort)
	opened := time.Now()

	bytesToDest, bytesToSource := n.route(source, result)

	n.metrics.BytesForwarded.Add(uint64(bytesToDest) + uint64(bytesToSource))
	n.logf("session %s closed: %d bytes to dest, %d bytes to source", sessionID, bytesToDest, bytesToSource)
	n.recordSession(sessionlog.Record{
		SessionID:     sessionID,
		SourceAddr:    string(sourceAddr),
		DestHost:      result.DestHost,
		DestPort:      result.DestPort,
		OpenedAt:      opened,
		ClosedAt:      time.Now(),
		BytesToDest:   bytesToDest,
		BytesToSource: bytesToSource,
	})
}

// route is TPDPService.route(): two concurrent pumps, one per
// direction, each under its own half of the HopKey cipher pair. Either
// pump ending (clean EOF or error) tears down both, since a session
// with only one live direction is useless (spec §8 invariant 4).
func (n *Node) route(source netx.Conn, result *tpdp.HandshakeResult) (bytesToDest, bytesToSource int64) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer result.Destination.Close()
		n, _ := tpdp.Pump(result.Destination, source, result.Hop.Decrypt, tpdp.DefaultPumpBufferSize)
		bytesToDest = n
		source.Close()
	}()
	go func() {
		defer wg.Done()
		defer source.Close()
		n, _ := tpdp.Pump(source, result.Destination, result.Hop.Encrypt, tpdp.DefaultPumpBufferSize)
		bytesToSource = n
		result.Destination.Close()
	}()

	wg.Wait()
	return
}

func (n *Node) recordSession(rec sessionlog.Record) {
	if n.cfg.SessionLog == nil {
		return
	}
	if err := n.cfg.SessionLog.Put(rec); err != nil {
		n.logf("session log write failed: %v", err)
	}
}
