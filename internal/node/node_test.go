package node

import (
	"bytes"
	"net"
	"testing"
	"time"

	"torpydo/internal/netx"
	"torpydo/internal/tpdp"
)

type loopConn struct {
	net.Conn
	remote netx.Addr
}

func (c *loopConn) RemoteAddr() netx.Addr { return c.remote }

func newLoopPair() (netx.Conn, netx.Conn) {
	a, b := net.Pipe()
	return &loopConn{Conn: a, remote: "client"}, &loopConn{Conn: b, remote: "source"}
}

// TestNodeRoutesBidirectionally drives a Node through a full source
// handshake and then exercises both directions of the pump it sets up,
// confirming bytes sent by a client arrive at the destination in
// plaintext and the destination's reply arrives back at the client
// correctly decrypted (spec §8 invariant 1 and 4).
func TestNodeRoutesBidirectionally(t *testing.T) {
	destNetwork := netx.NewPipeNetwork("dest")
	n := New(Config{Network: destNetwork, HandshakeTimeout: time.Second})

	clientConn, sourceConn := newLoopPair()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		n.handleConn(sourceConn)
	}()

	destReady := make(chan netx.Conn, 1)
	go func() {
		conn, err := destNetwork.Accept()
		if err != nil {
			t.Errorf("destination accept: %v", err)
			return
		}
		destReady <- conn
	}()

	hop, err := tpdp.ClientHandshake(clientConn, tpdp.IdentityTransform{}, time.Second, "echo.test", 9000)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	destConn := <-destReady
	defer destConn.Close()

	go func() {
		buf := make([]byte, 64)
		n, err := destConn.Read(buf)
		if err != nil {
			return
		}
		destConn.Write(buf[:n])
	}()

	plaintext := []byte("ping through the node")
	ciphertext := make([]byte, len(plaintext))
	hop.Encrypt.XORKeyStream(ciphertext, plaintext)
	if _, err := clientConn.Write(ciphertext); err != nil {
		t.Fatalf("client write: %v", err)
	}

	reply := make([]byte, len(plaintext))
	if _, err := clientConn.Read(reply); err != nil {
		t.Fatalf("client read: %v", err)
	}
	plainReply := make([]byte, len(reply))
	hop.Decrypt.XORKeyStream(plainReply, reply)
	if !bytes.Equal(plainReply, plaintext) {
		t.Fatalf("echoed reply mismatch: got %q want %q", plainReply, plaintext)
	}

	clientConn.Close()
	<-sessionDone
}

func TestNodeHandshakeFailureClosesWithoutDialingDestination(t *testing.T) {
	destNetwork := netx.NewPipeNetwork("dest")
	n := New(Config{Network: destNetwork, HandshakeTimeout: 50 * time.Millisecond})

	clientConn, sourceConn := newLoopPair()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.handleConn(sourceConn)
	}()

	// Same length as the real Hello, wrong contents.
	if _, err := clientConn.Write([]byte("HELLO TPDP/0.1\r\n")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	errByte := make([]byte, 1)
	if _, err := clientConn.Read(errByte); err != nil {
		t.Fatalf("read error byte: %v", err)
	}
	if tpdp.ErrorByte(errByte[0]) != tpdp.ErrByteProtocol {
		t.Fatalf("expected PROTOCOL_ERROR byte, got %v", errByte[0])
	}

	<-done
}
