// Package pool implements the PoolIndex half of Torpydo: an in-memory
// membership registry that nodes heartbeat into and clients list from
// (spec §4.3).
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"torpydo/internal/metrics"
	"torpydo/internal/netx"
	"torpydo/internal/poolwire"
	"torpydo/internal/telemetry"
)

// Config mirrors original_source/torpydo/pool.py's constructor plus its
// three set_* knobs, collected up front the way Torpydo's node.Config and
// client.Config do; the Index's Set* methods can still change them
// before Start.
type Config struct {
	BindAddr string
	Network  netx.Network
	Logger   telemetry.Logger
	Debug    bool

	// RequestedDelay is the heartbeat cadence, in seconds, the index
	// tells every registering node to use (default 15, matching
	// pool.py).
	RequestedDelay float64
	// DeprecationDelay is how long, in seconds, an entry survives
	// without a heartbeat before the sweep evicts it (default 30).
	DeprecationDelay float64
	// GCCycle is the sweep interval, in seconds (default 10). Spec
	// invariant: GCCycle <= DeprecationDelay, otherwise eviction lags
	// arbitrarily (spec §9 open question; Torpydo logs a warning but
	// does not clamp, matching "the source defines no clamping policy").
	GCCycle float64

	// RateLimitPerSecond and RateLimitBurst bound registration attempts
	// per source host. Zero disables the limiter.
	RateLimitPerSecond float64
	RateLimitBurst     float64
}

func (c *Config) setDefaults() {
	if c.Network == nil {
		c.Network = netx.NewTCPNetwork()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.RequestedDelay == 0 {
		c.RequestedDelay = 15
	}
	if c.DeprecationDelay == 0 {
		c.DeprecationDelay = 30
	}
	if c.GCCycle == 0 {
		c.GCCycle = 10
	}
}

// Index is a running pool index server.
type Index struct {
	cfg Config
	reg *registry
	lim *limiter

	metrics metrics.Counters

	mu      sync.Mutex
	started bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an Index. Call SetRequestedDelay/SetDeprecationDelay/
// SetGarbageCollectorCycle before Start if the defaults in Config don't
// fit — they remain runtime-settable up to that point, matching
// pool.py's set_* methods.
func New(cfg Config) *Index {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	idx := &Index{cfg: cfg, reg: newRegistry(), ctx: ctx, cancel: cancel}
	if cfg.RateLimitPerSecond > 0 {
		idx.lim = newLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, 1)
	}
	return idx
}

func (idx *Index) SetLog(flag bool) { idx.cfg.Debug = flag }

func (idx *Index) SetRequestedDelay(seconds float64) { idx.cfg.RequestedDelay = seconds }

func (idx *Index) SetDeprecationDelay(seconds float64) { idx.cfg.DeprecationDelay = seconds }

func (idx *Index) SetGarbageCollectorCycle(seconds float64) { idx.cfg.GCCycle = seconds }

func (idx *Index) Metrics() metrics.Snapshot { return idx.metrics.Snapshot() }

func (idx *Index) logf(format string, args ...any) {
	if idx.cfg.Debug {
		idx.cfg.Logger.Printf("[pool] "+format, args...)
	}
}

// Start begins listening and runs the accept loop and the garbage
// collector sweep concurrently, returning once both have stopped (on
// Stop, or on an unrecoverable accept error). It blocks, mirroring
// pool.py's start(): "await asyncio.gather(serve_forever(), gc())".
func (idx *Index) Start() error {
	idx.mu.Lock()
	if idx.started {
		idx.mu.Unlock()
		return fmt.Errorf("pool: already started")
	}
	idx.started = true
	idx.mu.Unlock()

	if idx.cfg.GCCycle > idx.cfg.DeprecationDelay {
		idx.logf("warning: gc_cycle (%.1fs) > deprecation_delay (%.1fs), eviction will lag", idx.cfg.GCCycle, idx.cfg.DeprecationDelay)
	}

	addr, err := idx.cfg.Network.Listen(idx.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("pool: listen: %w", err)
	}
	idx.logf("listening on %s", addr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		idx.acceptLoop()
		idx.cancel()
	}()
	go func() {
		defer wg.Done()
		idx.gcLoop()
	}()
	wg.Wait()
	return nil
}

func (idx *Index) Stop() {
	idx.cancel()
	_ = idx.cfg.Network.Close()
}

func (idx *Index) acceptLoop() {
	for {
		select {
		case <-idx.ctx.Done():
			return
		default:
		}
		conn, err := idx.cfg.Network.Accept()
		if err != nil {
			idx.logf("accept error: %v", err)
			return
		}
		go idx.handleConn(conn)
	}
}

func (idx *Index) gcLoop() {
	interval := time.Duration(idx.cfg.GCCycle * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-idx.ctx.Done():
			return
		case <-ticker.C:
			deprecation := time.Duration(idx.cfg.DeprecationDelay * float64(time.Second))
			removed := idx.reg.sweep(time.Now(), deprecation)
			for _, addr := range removed {
				idx.logf("removed node %s", addr)
			}
		}
	}
}

func (idx *Index) handleConn(conn netx.Conn) {
	defer conn.Close()

	var env poolwire.Envelope
	if err := poolwire.ReadFrame(conn, &env); err != nil {
		idx.logf("peer closed connection: %v", err)
		return
	}

	switch env.Type {
	case poolwire.MessageList:
		idx.handleList(conn)
	case poolwire.MessageRegister:
		if idx.lim != nil {
			key := hostOf(conn.RemoteAddr())
			if !idx.lim.allow(key, time.Now()) {
				idx.logf("rate limited %s", key)
				return
			}
		}
		idx.handleRegister(conn, env.Payload)
	default:
		idx.logf("unrecognized message type %q", env.Type)
	}
}

func (idx *Index) handleList(conn netx.Conn) {
	nodes := idx.reg.list()
	resp := poolwire.ListResponse{Nodes: make([]poolwire.NodeEndpoint, 0, len(nodes))}
	for _, addr := range nodes {
		host, port := splitAddr(addr)
		resp.Nodes = append(resp.Nodes, poolwire.NodeEndpoint{Host: host, Port: port})
	}
	if err := poolwire.WriteFrame(conn, resp); err != nil {
		idx.logf("send node list: %v", err)
		return
	}
	idx.logf("sent node list (%d entries) to %s", len(resp.Nodes), conn.RemoteAddr())
}

func (idx *Index) handleRegister(conn netx.Conn, payload json.RawMessage) {
	var req poolwire.RegisterRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		idx.logf("bad register payload: %v", err)
		return
	}

	addr := netx.Addr(fmt.Sprintf("%s:%d", req.Host, req.Port))
	if added := idx.reg.touch(addr, time.Now()); added {
		idx.logf("added node %s", addr)
	}

	resp := poolwire.RegisterResponse{RequestedDelay: idx.cfg.RequestedDelay}
	if err := poolwire.WriteFrame(conn, resp); err != nil {
		idx.logf("send register response: %v", err)
	}
}

func hostOf(addr netx.Addr) string {
	s := string(addr)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[:i]
	}
	return s
}

func splitAddr(addr netx.Addr) (host string, port uint16) {
	s := string(addr)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	host = s[:i]
	var p int
	fmt.Sscanf(s[i+1:], "%d", &p)
	return host, uint16(p)
}
