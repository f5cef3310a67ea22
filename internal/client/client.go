// Package client implements the Torpydo client: known-nodes management,
// recursive path construction through a chain of nodes, and end-to-end
// send/receive once the chain reaches its destination (spec §4.2).
package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"torpydo/internal/metrics"
	"torpydo/internal/netx"
	"torpydo/internal/poolwire"
	"torpydo/internal/telemetry"
	"torpydo/internal/tpdp"
)

// ErrPathBuild is returned by RandomPathToDestination when the known-
// nodes cache can't supply enough distinct hops, or when a handshake
// partway through the chain fails. It wraps the underlying cause.
var ErrPathBuild = errors.New("client: path build failed")

// Role is a purely descriptive label for a hop's position in the
// current path; it carries no protocol meaning.
type Role string

const (
	RoleEntry Role = "entry"
	RoleRelay Role = "relay"
	RoleExit  Role = "exit"
)

type hop struct {
	Endpoint netx.Addr
	Role     Role
	Key      *tpdp.HopKey
}

// Config mirrors the teacher's NodeConfig/ClientConfig shape: transport,
// logging and timeout knobs collected up front.
type Config struct {
	Network          netx.Network
	Logger           telemetry.Logger
	Debug            bool
	HandshakeTimeout time.Duration

	// NodeStorePath, when set, persists the known-nodes cache to disk
	// so a client survives restarts without a fresh sync_nodes_list.
	NodeStorePath string
}

func (c *Config) setDefaults() {
	if c.Network == nil {
		c.Network = netx.NewTCPNetwork()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Client is a Torpydo client, following the path-construction and
// send/receive operations of spec §4.2. A Client holds at most one
// physical connection and one path at a time; build a new Client per
// concurrent circuit.
type Client struct {
	cfg   Config
	store *nodeStore

	metrics metrics.Counters

	mu    sync.Mutex
	known map[netx.Addr]struct{}

	conn netx.Conn
	path []*hop
}

func New(cfg Config) *Client {
	cfg.setDefaults()
	c := &Client{cfg: cfg, known: make(map[netx.Addr]struct{})}
	if cfg.NodeStorePath != "" {
		c.store = newNodeStore(cfg.NodeStorePath)
		for _, addr := range c.store.Loaded() {
			c.known[addr] = struct{}{}
		}
	}
	return c
}

func (c *Client) logf(format string, args ...any) {
	if c.cfg.Debug {
		c.cfg.Logger.Printf("[client] "+format, args...)
	}
}

func (c *Client) Metrics() metrics.Snapshot { return c.metrics.Snapshot() }

// SyncNodesList contacts the pool index at (host, port), lists its live
// nodes, and unions them into the known-nodes cache (spec §4.2).
func (c *Client) SyncNodesList(host string, port uint16) error {
	addr := netx.Addr(fmt.Sprintf("%s:%d", host, port))
	entries, err := poolwire.List(c.cfg.Network, addr, c.cfg.HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("client: sync_nodes_list: %w", err)
	}

	c.mu.Lock()
	for _, e := range entries {
		c.known[netx.Addr(fmt.Sprintf("%s:%d", e.Host, e.Port))] = struct{}{}
	}
	c.mu.Unlock()

	if c.store != nil {
		for _, e := range entries {
			c.store.NoteKnown(netx.Addr(fmt.Sprintf("%s:%d", e.Host, e.Port)))
		}
		if err := c.store.Save(); err != nil {
			c.logf("node store save failed: %v", err)
		}
	}
	return nil
}

// PurgeNodesList empties the known-nodes cache.
func (c *Client) PurgeNodesList() {
	c.mu.Lock()
	c.known = make(map[netx.Addr]struct{})
	c.mu.Unlock()
}

// KnownNodes returns a snapshot of the current known-nodes cache.
func (c *Client) KnownNodes() []netx.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]netx.Addr, 0, len(c.known))
	for a := range c.known {
		out = append(out, a)
	}
	return out
}

// Connect opens the physical TCP connection to the first hop. It
// performs no handshake by itself; the first call to NextDestination
// handshakes with this hop, announcing whatever destination is passed
// to it (spec §4.2's connect/next_destination pair — see DESIGN.md for
// why Torpydo splits the dial from the handshake this way).
func (c *Client) Connect(host string, port uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("client: already connected")
	}
	addr := netx.Addr(fmt.Sprintf("%s:%d", host, port))
	conn, err := c.dial(addr)
	if err != nil {
		return fmt.Errorf("client: connect %s: %w", addr, err)
	}
	c.conn = conn
	c.path = nil
	return nil
}

func (c *Client) dial(addr netx.Addr) (netx.Conn, error) {
	if dialer, ok := c.cfg.Network.(netx.TimeoutDialer); ok {
		return dialer.DialTimeout(addr, c.cfg.HandshakeTimeout)
	}
	return c.cfg.Network.Dial(addr)
}

// NextDestination performs one more hop's handshake, tunnelled through
// every hop already in the path, announcing (host, port) as that new
// hop's destination (spec §4.2). Used for the first hop (zero existing
// hops, identity transform) exactly as for every subsequent hop.
func (c *Client) NextDestination(host string, port uint16) error {
	c.mu.Lock()
	conn := c.conn
	transform := c.outerTransform()
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("client: not connected")
	}

	key, err := tpdp.ClientHandshake(conn, transform, c.cfg.HandshakeTimeout, host, port)
	if err != nil {
		c.metrics.HandshakesFailed.Add(1)
		if c.store != nil {
			c.store.NoteFailure(netx.Addr(fmt.Sprintf("%s:%d", host, port)))
		}
		return fmt.Errorf("client: next_destination %s:%d: %w", host, port, err)
	}
	c.metrics.HandshakesOK.Add(1)

	c.mu.Lock()
	c.path = append(c.path, &hop{Endpoint: netx.Addr(fmt.Sprintf("%s:%d", host, port)), Key: key})
	c.assignRoles()
	c.mu.Unlock()
	return nil
}

func (c *Client) assignRoles() {
	n := len(c.path)
	for i, h := range c.path {
		switch {
		case i == n-1:
			h.Role = RoleExit
		case i == 0:
			h.Role = RoleEntry
		default:
			h.Role = RoleRelay
		}
	}
}

func (c *Client) outerTransform() tpdp.ByteTransform {
	if len(c.path) == 0 {
		return tpdp.IdentityTransform{}
	}
	return &pathTransform{hops: append([]*hop(nil), c.path...)}
}

// RandomPathToDestination builds a full circuit: it selects n distinct
// nodes at random from the known-nodes cache, connects to the first,
// handshakes through each in turn announcing the next as its
// destination, and finally handshakes the last hop announcing the real
// destination (spec §4.2). Selection happens before any socket is
// opened, so an insufficient known-nodes cache fails without side
// effects.
func (c *Client) RandomPathToDestination(host string, port uint16, n int) error {
	candidates := c.KnownNodes()
	picked, err := selectRandomNodes(candidates, n)
	if err != nil {
		return err
	}

	h0, p0 := splitAddr(picked[0])
	if err := c.Connect(h0, p0); err != nil {
		return fmt.Errorf("%w: %w", ErrPathBuild, err)
	}

	for i := 1; i < len(picked); i++ {
		h, p := splitAddr(picked[i])
		if err := c.NextDestination(h, p); err != nil {
			c.Close()
			return fmt.Errorf("%w: %w", ErrPathBuild, err)
		}
	}

	if err := c.NextDestination(host, port); err != nil {
		c.Close()
		return fmt.Errorf("%w: %w", ErrPathBuild, err)
	}
	return nil
}

// Send encrypts data under every hop's key in reverse hop order (the
// exit hop's key applied first, the entry hop's key applied last — the
// same order as pathTransform), and writes it to the first hop.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	path := append([]*hop(nil), c.path...)
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("client: not connected")
	}

	ciphertext := data
	for i := len(path) - 1; i >= 0; i-- {
		out := make([]byte, len(ciphertext))
		path[i].Key.Encrypt.XORKeyStream(out, ciphertext)
		ciphertext = out
	}
	if _, err := conn.Write(ciphertext); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	c.metrics.BytesForwarded.Add(uint64(len(data)))
	return nil
}

// Receive reads up to bufSize bytes from the chain and decrypts them
// through every hop in forward order. It may return fewer bytes than
// bufSize, mirroring a single Read.
func (c *Client) Receive(bufSize int) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	path := append([]*hop(nil), c.path...)
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("client: not connected")
	}

	buf := make([]byte, bufSize)
	n, err := conn.Read(buf)
	if n == 0 {
		return nil, err
	}
	return decryptThroughPath(path, buf[:n]), nil
}

// ReceiveExactly reads exactly n bytes, failing if the connection
// closes early, then decrypts them through every hop in forward order.
func (c *Client) ReceiveExactly(n int) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	path := append([]*hop(nil), c.path...)
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("client: not connected")
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("client: receive_exactly: %w", err)
	}
	return decryptThroughPath(path, buf), nil
}

func decryptThroughPath(path []*hop, data []byte) []byte {
	plain := data
	for _, h := range path {
		out := make([]byte, len(plain))
		h.Key.Decrypt.XORKeyStream(out, plain)
		plain = out
	}
	return plain
}

// Close tears down the physical connection and zeroes every hop key in
// the current path.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	for _, h := range c.path {
		h.Key.Zero()
	}
	c.conn = nil
	c.path = nil
	return err
}

func splitAddr(addr netx.Addr) (host string, port uint16) {
	s := string(addr)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			host = s[:i]
			var p int
			fmt.Sscanf(s[i+1:], "%d", &p)
			return host, uint16(p)
		}
	}
	return s, 0
}
