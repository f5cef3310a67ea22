// Package netx abstracts the transport Torpydo runs over so that the
// handshake and forwarding logic in internal/tpdp, internal/node and
// internal/client can be exercised against an in-memory pipe in tests
// without a real listening socket.
package netx

import (
	"io"
	"time"
)

// Addr is a "host:port" endpoint identifier. Hosts are DNS names or IP
// literals; Torpydo never resolves or compares them beyond string equality.
type Addr string

// Conn is a bidirectional byte stream with a settable deadline, used to
// bound every handshake step (spec: 10s default per step).
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() Addr
	SetDeadline(t time.Time) error
}

// Network is the dial/listen surface Node, Client and PoolIndex depend on.
type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(addr Addr) (Conn, error)
	Close() error
}

// TimeoutDialer is implemented by networks that can bound the dial itself,
// as opposed to only the application-level handshake on top of it.
type TimeoutDialer interface {
	DialTimeout(addr Addr, timeout time.Duration) (Conn, error)
}
