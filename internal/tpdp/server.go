package tpdp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"torpydo/internal/netx"
)

// HandshakeResult is what a node walks away with after successfully
// completing its side of the TPDP/0.1 handshake with a source peer: the
// negotiated HopKey and the already-open connection to the destination
// the source named.
type HandshakeResult struct {
	Hop         *HopKey
	Destination netx.Conn
	DestHost    string
	DestPort    uint16
}

// ServerHandshake performs the node side of the handshake against
// source, exactly in the order of spec §4.1 steps 1-14: hello exchange,
// X25519, HKDF, AES-CTR setup, ACK, destination negotiation, connect,
// ETB. Every await is bounded by timeout; on timeout/protocol failure the
// node sends the corresponding single error byte and returns a non-nil
// error without touching the destination network at all.
func ServerHandshake(source netx.Conn, network netx.Network, timeout time.Duration) (*HandshakeResult, error) {
	// 1. await source hello
	hello, err := awaitFromSource(source, len(Hello), timeout)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(hello, Hello) {
		writeErrorByte(source, ErrByteProtocol)
		return nil, ErrProtocol
	}

	// 2. send node hello
	if err := writeFull(source, Hello, timeout); err != nil {
		return nil, err
	}

	// 3. generate ephemeral X25519 key pair
	priv, pub, err := newX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("tpdp: generate key pair: %w", err)
	}

	// 4. await source's X25519 public key
	peerPub, err := awaitFromSource(source, 32, timeout)
	if err != nil {
		return nil, err
	}

	// 5. send node's X25519 public key
	if err := writeFull(source, pub[:], timeout); err != nil {
		return nil, err
	}

	// 6. compute shared secret, derive symmetric key
	key, err := deriveSharedKey(priv, peerPub)
	if err != nil {
		writeErrorByte(source, ErrByteProtocol)
		return nil, fmt.Errorf("%w: key derivation: %v", ErrProtocol, err)
	}

	// 7. await source-chosen AES-CTR nonce
	nonceBytes, err := awaitFromSource(source, 16, timeout)
	if err != nil {
		return nil, err
	}
	var nonce [16]byte
	copy(nonce[:], nonceBytes)

	// 8. instantiate the two AES-256-CTR streams
	hop, err := newHopKey(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("tpdp: cipher setup: %w", err)
	}

	// 9. ACK
	if err := writeFull(source, ackBytes, timeout); err != nil {
		return nil, err
	}

	// 10. await encrypted destination hostname length + hostname
	lenCipher, err := awaitFromSource(source, 2, timeout)
	if err != nil {
		return nil, err
	}
	lenPlain := make([]byte, 2)
	hop.Decrypt.XORKeyStream(lenPlain, lenCipher)
	hostLen := int(binary.BigEndian.Uint16(lenPlain))

	hostCipher, err := awaitFromSource(source, hostLen, timeout)
	if err != nil {
		return nil, err
	}
	hostPlain := make([]byte, hostLen)
	hop.Decrypt.XORKeyStream(hostPlain, hostCipher)
	host := string(hostPlain)

	// 11. ACK
	if err := writeFull(source, ackBytes, timeout); err != nil {
		return nil, err
	}

	// 12. await encrypted destination port
	portCipher, err := awaitFromSource(source, 2, timeout)
	if err != nil {
		return nil, err
	}
	portPlain := make([]byte, 2)
	hop.Decrypt.XORKeyStream(portPlain, portCipher)
	port := binary.BigEndian.Uint16(portPlain)

	// 13. connect to destination
	destAddr := netx.Addr(fmt.Sprintf("%s:%d", host, port))
	var dest netx.Conn
	if dialer, ok := network.(netx.TimeoutDialer); ok {
		dest, err = dialer.DialTimeout(destAddr, timeout)
	} else {
		dest, err = network.Dial(destAddr)
	}
	if err != nil {
		writeErrorByte(source, ErrByteDestination)
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationUnreachable, destAddr, err)
	}

	// 14. ETB
	if err := writeFull(source, etbBytes, timeout); err != nil {
		_ = dest.Close()
		return nil, err
	}

	return &HandshakeResult{Hop: hop, Destination: dest, DestHost: host, DestPort: port}, nil
}

// awaitFromSource reads n bytes from source within timeout. On timeout it
// sends TIMEOUT_ERROR to source before returning, matching spec §4.1's
// "Expiry -> send TIMEOUT_ERROR error (one byte) and close" for every
// await step. A closed/EOF source is not worth signalling (nothing would
// receive it).
func awaitFromSource(source netx.Conn, n int, timeout time.Duration) ([]byte, error) {
	data, err := readExactly(source, n, timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			writeErrorByte(source, ErrByteTimeout)
		}
		return nil, err
	}
	return data, nil
}
