// Package poolwire is the request/response protocol a Node or Client
// speaks to a PoolIndex: register-or-heartbeat and list (spec §6.3).
// Framing follows the teacher's internal/crypto/noiseconn.SecureConn —
// a 4-byte big-endian length prefix ahead of a JSON payload — minus the
// Noise encryption layer, since the pool index is explicitly
// unauthenticated and trust-on-first-use.
package poolwire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame so a misbehaving peer can't force
// an unbounded allocation.
const MaxFrameSize = 64 * 1024

// MessageType names the two requests a pool index understands.
type MessageType string

const (
	// MessageRegister is a combined register/heartbeat request: a node
	// not yet known to the index is added; a known one has its
	// last-heartbeat timestamp refreshed (spec §4.3, §6.3).
	MessageRegister MessageType = "register"
	// MessageList asks the index for its current listing of live nodes.
	MessageList MessageType = "list"
)

// Envelope is the wire shape of every poolwire message, named after the
// teacher's internal/proto.Envelope (Type + raw payload) so request and
// response decoding can defer parsing the payload until Type is known.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterRequest carries the registering node's own listening endpoint.
type RegisterRequest struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// RegisterResponse carries the index's requested heartbeat cadence,
// floating-point seconds per spec §6.3.
type RegisterResponse struct {
	RequestedDelay float64 `json:"requested_delay"`
}

// ListResponse carries the index's current, non-deprecated node listing.
type ListResponse struct {
	Nodes []NodeEndpoint `json:"nodes"`
}

// NodeEndpoint is a bare (host, port) pair as it appears on the wire.
type NodeEndpoint struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// WriteFrame writes v as a length-prefixed JSON frame to w.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("poolwire: encode: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("poolwire: frame too large: %d bytes", len(body))
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed JSON frame from r and decodes it
// into v.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxFrameSize {
		return fmt.Errorf("poolwire: frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
