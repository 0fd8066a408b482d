package feed

import (
	"log/slog"
	"sync"
)

// PoolKey identifies one logical upstream feed.
type PoolKey struct {
	Endpoint   string
	MarketType string
}

// Pool reference-counts Conns by (endpoint, market type) so two
// callers asking for the same logical feed always share one socket.
type Pool struct {
	mu     sync.Mutex
	conns  map[PoolKey]*pooledConn
	newFn  func(PoolKey) *Conn
	logger *slog.Logger
}

type pooledConn struct {
	conn *Conn
	refs int
}

// NewPool creates a Pool. newFn constructs the Conn for a key on first
// acquire.
func NewPool(newFn func(PoolKey) *Conn, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		conns:  make(map[PoolKey]*pooledConn),
		newFn:  newFn,
		logger: logger,
	}
}

// Acquire returns the shared Conn for a key, creating it on first use,
// and a release function. Release is idempotent; when the last holder
// releases, the Conn is disconnected and dropped from the pool.
func (p *Pool) Acquire(key PoolKey) (*Conn, func()) {
	p.mu.Lock()
	pc, ok := p.conns[key]
	if !ok {
		pc = &pooledConn{conn: p.newFn(key)}
		p.conns[key] = pc
		p.logger.Debug("pool opened connection", "endpoint", key.Endpoint, "market_type", key.MarketType)
	}
	pc.refs++
	p.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.mu.Lock()
			pc.refs--
			last := pc.refs == 0
			if last {
				delete(p.conns, key)
			}
			p.mu.Unlock()

			if last {
				pc.conn.Disconnect()
				p.logger.Debug("pool closed connection", "endpoint", key.Endpoint, "market_type", key.MarketType)
			}
		})
	}
	return pc.conn, release
}

// Refs returns the holder count for a key (0 if absent).
func (p *Pool) Refs(key PoolKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.conns[key]
	if !ok {
		return 0
	}
	return pc.refs
}

// Size returns the number of open connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
