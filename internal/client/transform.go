package client

// pathTransform tunnels a not-yet-established hop's handshake bytes
// through every hop already in the path: encrypt outbound in reverse
// hop order (innermost layer applied first, the first hop's layer
// applied last so that hop peels it off first), decrypt inbound in
// forward order (spec §4.2, §8
// invariant 2).
type pathTransform struct {
	hops []*hop
}

func (t *pathTransform) EncryptOutbound(p []byte) []byte {
	out := p
	for i := len(t.hops) - 1; i >= 0; i-- {
		next := make([]byte, len(out))
		t.hops[i].Key.Encrypt.XORKeyStream(next, out)
		out = next
	}
	return out
}

func (t *pathTransform) DecryptInbound(p []byte) []byte {
	out := p
	for _, h := range t.hops {
		next := make([]byte, len(out))
		h.Key.Decrypt.XORKeyStream(next, out)
		out = next
	}
	return out
}
