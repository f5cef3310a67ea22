package tpdp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"torpydo/internal/netx"
)

// Version is the protocol version string this package implements.
const Version = "0.1"

// Hello is the literal 16-byte greeting exchanged by both sides at the
// start of a handshake (spec §6.1).
var Hello = []byte("Hello TPDP/0.1\r\n")

var (
	ackBytes = []byte{0x06, 0x06}
	etbBytes = []byte{0x17, 0x17}
)

// readUpTo reads up to n bytes from conn, bounded by timeout (0 disables
// the deadline). It returns whatever was read even on error, so callers
// can recover a short read that is actually a single trailing error byte
// (spec §7: "clients observe the error byte as the last received byte").
// A deadline expiry is reported as ErrTimeout; the peer closing before n
// bytes arrive is reported as ErrProtocol.
func readUpTo(conn netx.Conn, n int, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetDeadline(time.Time{})
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(conn, buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return buf[:got], ErrTimeout
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return buf[:got], fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return buf[:got], err
	}
	return buf[:got], nil
}

// readExactly is readUpTo for callers that have no use for a short read.
func readExactly(conn netx.Conn, n int, timeout time.Duration) ([]byte, error) {
	buf, err := readUpTo(conn, n, timeout)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFull(conn netx.Conn, data []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}
	_, err := conn.Write(data)
	return err
}

// writeErrorByte is the node's half of spec §7's error propagation: send
// one byte, then the caller closes. Best-effort — the peer may already
// be gone.
func writeErrorByte(conn netx.Conn, code ErrorByte) {
	_ = writeFull(conn, []byte{byte(code)}, 2*time.Second)
}
