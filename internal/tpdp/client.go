package tpdp

import (
	"bytes"
	"encoding/binary"
	"time"

	"torpydo/internal/netx"
)

// ByteTransform tunnels handshake bytes for a not-yet-established hop
// through every hop already in the path, per spec §4.2's
// next_destination: "encrypt S with every existing HopKey in reverse
// order ... then write to the first socket", and the symmetric inverse
// for reads. The zero-hop case (the very first hop) is the identity
// transform: both methods return p unchanged.
type ByteTransform interface {
	EncryptOutbound(p []byte) []byte
	DecryptInbound(p []byte) []byte
}

// IdentityTransform is the ByteTransform used to establish a path's
// first hop, where there is nothing yet to tunnel through.
type IdentityTransform struct{}

func (IdentityTransform) EncryptOutbound(p []byte) []byte { return p }
func (IdentityTransform) DecryptInbound(p []byte) []byte  { return p }

// ClientHandshake performs the client side of a TPDP/0.1 handshake for
// one new hop reachable over conn (the physical socket to the first
// hop), tunnelling every byte through tunnel so that already-established
// hops only ever see an opaque stream (spec §4.2). destHost/destPort are
// announced to the new hop as its destination — the next hop in the
// chain, or the real destination for the last hop.
//
// On success it returns the new hop's HopKey with its own cipher pair
// already seated; the caller is responsible for appending it to the
// path. On failure it returns ErrProtocol, ErrTimeout, an ErrorByte
// observed from the peer, or a transport error.
func ClientHandshake(conn netx.Conn, tunnel ByteTransform, timeout time.Duration, destHost string, destPort uint16) (*HopKey, error) {
	send := func(p []byte) error {
		return writeFull(conn, tunnel.EncryptOutbound(p), timeout)
	}
	// recv mirrors original_source/torpydo/tpdp.py's _receive_from_node:
	// a short read caused by the peer closing after sending a single
	// error byte is recovered, decrypted through the same tunnel, and
	// surfaced as that ErrorByte rather than a bare transport error.
	recv := func(n int) ([]byte, error) {
		raw, err := readUpTo(conn, n, timeout)
		if err != nil {
			if len(raw) > 0 {
				plain := tunnel.DecryptInbound(raw)
				if len(plain) > 0 {
					return nil, ErrorByte(plain[len(plain)-1])
				}
			}
			return nil, err
		}
		return tunnel.DecryptInbound(raw), nil
	}

	if err := send(Hello); err != nil {
		return nil, err
	}
	hello, err := recv(len(Hello))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(hello, Hello) {
		return nil, ErrProtocol
	}

	priv, pub, err := newX25519KeyPair()
	if err != nil {
		return nil, err
	}
	if err := send(pub[:]); err != nil {
		return nil, err
	}

	peerPub, err := recv(32)
	if err != nil {
		return nil, err
	}

	key, err := deriveSharedKey(priv, peerPub)
	if err != nil {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if err := send(nonce[:]); err != nil {
		return nil, err
	}

	hop, err := newHopKey(key, nonce)
	if err != nil {
		return nil, err
	}

	ack1, err := recv(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ack1, ackBytes) {
		return nil, ErrProtocol
	}

	hostPlain := []byte(destHost)
	lenPlain := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPlain, uint16(len(hostPlain)))
	lenCipher := make([]byte, 2)
	hop.Encrypt.XORKeyStream(lenCipher, lenPlain)
	if err := send(lenCipher); err != nil {
		return nil, err
	}

	hostCipher := make([]byte, len(hostPlain))
	hop.Encrypt.XORKeyStream(hostCipher, hostPlain)
	if err := send(hostCipher); err != nil {
		return nil, err
	}

	ack2, err := recv(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ack2, ackBytes) {
		return nil, ErrProtocol
	}

	portPlain := make([]byte, 2)
	binary.BigEndian.PutUint16(portPlain, destPort)
	portCipher := make([]byte, 2)
	hop.Encrypt.XORKeyStream(portCipher, portPlain)
	if err := send(portCipher); err != nil {
		return nil, err
	}

	final, err := recv(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(final, etbBytes) {
		return nil, ErrProtocol
	}

	return hop, nil
}
