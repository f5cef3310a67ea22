package netx

import (
	"errors"
	"net"
	"sync"
	"time"
)

// pipeConn adapts net.Pipe's net.Conn to netx.Conn.
type pipeConn struct {
	net.Conn
	remote Addr
}

func (c *pipeConn) RemoteAddr() Addr { return c.remote }

// PipeNetwork is an in-memory Network backed by net.Pipe, used by tests
// that need two connected endpoints without opening a real socket. Dial
// returns at once: if no Accept is waiting, a background goroutine hands
// the server end to the next Accept.
type PipeNetwork struct {
	addr Addr

	mu     sync.Mutex
	closed bool
	dials  chan net.Conn
}

// NewPipeNetwork returns a Network identifying itself as addr.
func NewPipeNetwork(addr Addr) *PipeNetwork {
	return &PipeNetwork{addr: addr, dials: make(chan net.Conn)}
}

func (p *PipeNetwork) Listen(bindAddr string) (Addr, error) {
	return p.addr, nil
}

func (p *PipeNetwork) Accept() (Conn, error) {
	c, ok := <-p.dials
	if !ok {
		return nil, net.ErrClosed
	}
	return &pipeConn{Conn: c, remote: p.addr}, nil
}

func (p *PipeNetwork) Dial(addr Addr) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, net.ErrClosed
	}
	p.mu.Unlock()

	client, server := net.Pipe()
	select {
	case p.dials <- server:
	default:
		go func() { p.dials <- server }()
	}
	return &pipeConn{Conn: client, remote: addr}, nil
}

func (p *PipeNetwork) DialTimeout(addr Addr, timeout time.Duration) (Conn, error) {
	return p.Dial(addr)
}

func (p *PipeNetwork) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("netx: pipe network already closed")
	}
	p.closed = true
	close(p.dials)
	return nil
}
