package tpdp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo pins the HKDF context string, since TPDP/0.1 leaves salt/info
// unspecified (spec §9 open question). original_source/torpydo/tpdp.py
// pins salt=None, info=b"TPDP/0.1"; this implementation matches it so a
// Torpydo client and node derive the same key from the same shared secret.
var hkdfInfo = []byte("TPDP/0.1")

// HopKey is the per-hop symmetric state described in spec §3: a derived
// AES-256 key, a 16-byte CTR nonce, and two independent AES-256-CTR
// streams, one per direction, each with its own counter starting at 0.
// Encrypt and Decrypt must never be shared across directions — doing so
// would let their counters collide (spec §9).
type HopKey struct {
	Key     [32]byte
	Nonce   [16]byte
	Encrypt cipher.Stream
	Decrypt cipher.Stream
}

// newX25519KeyPair generates an ephemeral Curve25519 key pair from a
// cryptographically secure source, as spec §5 requires for session keys.
func newX25519KeyPair() (priv [32]byte, pub [32]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pubSlice)
	return
}

// deriveSharedKey computes the X25519 ECDH shared secret against peerPub
// and derives a 32-byte AES key from it via HKDF-SHA256.
func deriveSharedKey(priv [32]byte, peerPub []byte) ([32]byte, error) {
	shared, err := curve25519.X25519(priv[:], peerPub)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	kdf := hkdf.New(sha256.New, shared, nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return [32]byte{}, err
	}
	return out, nil
}

// newNonce draws a fresh 16-byte AES-CTR nonce from a CSPRNG. Per spec
// §3, reuse of a nonce with the same key across sessions is forbidden;
// a fresh X25519 exchange every session makes that automatic here.
func newNonce() ([16]byte, error) {
	var n [16]byte
	_, err := io.ReadFull(rand.Reader, n[:])
	return n, err
}

// newHopKey instantiates the two independent AES-256-CTR streams for one
// hop from its derived key and nonce, both counters starting at 0.
func newHopKey(key [32]byte, nonce [16]byte) (*HopKey, error) {
	encBlock, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	decBlock, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &HopKey{
		Key:     key,
		Nonce:   nonce,
		Encrypt: cipher.NewCTR(encBlock, nonce[:]),
		Decrypt: cipher.NewCTR(decBlock, nonce[:]),
	}, nil
}

// Zero overwrites the key material in place (best-effort zeroisation on
// session end, per spec §5). The cipher.Stream instances themselves keep
// internal state that Go's standard library does not expose for
// zeroing; discarding the HopKey value is the best this package can do
// for them.
func (h *HopKey) Zero() {
	if h == nil {
		return
	}
	for i := range h.Key {
		h.Key[i] = 0
	}
	for i := range h.Nonce {
		h.Nonce[i] = 0
	}
}
