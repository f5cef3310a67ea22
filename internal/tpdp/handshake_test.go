package tpdp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"torpydo/internal/netx"
)

type loopConn struct {
	net.Conn
	remote netx.Addr
}

func (c *loopConn) RemoteAddr() netx.Addr { return c.remote }

func newLoopPair() (netx.Conn, netx.Conn) {
	a, b := net.Pipe()
	return &loopConn{Conn: a, remote: "client"}, &loopConn{Conn: b, remote: "node"}
}

func TestHandshakeRoundTrip(t *testing.T) {
	clientConn, serverConn := newLoopPair()
	network := netx.NewPipeNetwork("dest")

	var (
		serverResult *HandshakeResult
		serverErr    error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serverResult, serverErr = ServerHandshake(serverConn, network, time.Second)
	}()

	hop, err := ClientHandshake(clientConn, IdentityTransform{}, time.Second, "example.onion", 443)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	<-done
	if serverErr != nil {
		t.Fatalf("server handshake: %v", serverErr)
	}

	if serverResult.DestHost != "example.onion" || serverResult.DestPort != 443 {
		t.Fatalf("destination mismatch: got %s:%d", serverResult.DestHost, serverResult.DestPort)
	}

	if hop.Key != serverResult.Hop.Key || hop.Nonce != serverResult.Hop.Nonce {
		t.Fatalf("client and server did not agree on key/nonce")
	}

	// The client's Decrypt stream must invert the server's Encrypt
	// stream and vice versa (they share key+nonce+counter=0 but were
	// constructed independently on each side).
	plaintext := []byte("ping response from destination")
	ciphertext := make([]byte, len(plaintext))
	serverResult.Hop.Encrypt.XORKeyStream(ciphertext, plaintext)
	recovered := make([]byte, len(plaintext))
	hop.Decrypt.XORKeyStream(recovered, ciphertext)
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("decrypt(encrypt(p)) != p: got %q", recovered)
	}

	outbound := []byte("ping")
	outCipher := make([]byte, len(outbound))
	hop.Encrypt.XORKeyStream(outCipher, outbound)
	outPlain := make([]byte, len(outbound))
	serverResult.Hop.Decrypt.XORKeyStream(outPlain, outCipher)
	if !bytes.Equal(outPlain, outbound) {
		t.Fatalf("server could not decrypt client's encrypted bytes: got %q", outPlain)
	}
}

func TestHandshakeBadHello(t *testing.T) {
	clientConn, serverConn := newLoopPair()
	network := netx.NewPipeNetwork("dest")

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, network, time.Second)
		done <- err
	}()

	if err := writeFull(clientConn, []byte("HELLO TPDP/0.1\r\n"), time.Second); err != nil {
		t.Fatalf("write bad hello: %v", err)
	}

	errByte, err := readExactly(clientConn, 1, time.Second)
	if err != nil {
		t.Fatalf("read error byte: %v", err)
	}
	if ErrorByte(errByte[0]) != ErrByteProtocol {
		t.Fatalf("expected PROTOCOL_ERROR byte, got %v", errByte[0])
	}

	serverErr := <-done
	if serverErr != ErrProtocol {
		t.Fatalf("expected ErrProtocol, got %v", serverErr)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	clientConn, serverConn := newLoopPair()
	defer clientConn.Close()
	network := netx.NewPipeNetwork("dest")

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, network, 20*time.Millisecond)
		done <- err
	}()

	// Never send anything: the node's first await should time out.
	errByte, err := readExactly(clientConn, 1, time.Second)
	if err != nil {
		t.Fatalf("read error byte: %v", err)
	}
	if ErrorByte(errByte[0]) != ErrByteTimeout {
		t.Fatalf("expected TIMEOUT_ERROR byte, got %v", errByte[0])
	}

	serverErr := <-done
	if serverErr != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", serverErr)
	}
}
