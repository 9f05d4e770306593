// Package sqlite provides the SQLite persistence layer: a bounded
// connection pool and the challenge, session, authorization-code and
// audit-log stores built on it.
//
// Connections come from zombiezen.com/go/sqlite and are NOT safe for
// concurrent use, so all access goes through the pool. Callers Take a
// connection, do their work, and Put it back. The pool is the single
// point of admission control over the database: at most MaxConns
// connections are open, excess demand queues FIFO, and every waiter is
// either served or times out.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
)

var (
	// ErrPoolClosed is returned by Take after Close.
	ErrPoolClosed = errors.New("sqlite: pool is closed")

	// ErrAcquireTimeout is returned by Take when no connection became
	// available within the acquire timeout.
	ErrAcquireTimeout = errors.New("sqlite: connection acquire timed out")
)

// PoolConfig holds the parameters for opening a pool. Path is
// required; everything else has defaults.
type PoolConfig struct {
	// Path is the filesystem path to the database file. Created if it
	// does not exist.
	Path string

	// MinConns connections are opened eagerly and the reaper never
	// shrinks the pool below this. Default 2.
	MinConns int

	// MaxConns bounds the total number of open connections. Default 10.
	MaxConns int

	// AcquireTimeout bounds how long Take waits for a connection when
	// MaxConns are busy. Default 10s.
	AcquireTimeout time.Duration

	// IdleTimeout is how long a connection may sit idle before the
	// reaper closes it. Default 60s.
	IdleTimeout time.Duration

	// ReapInterval is how often the reaper runs. Default 30s.
	ReapInterval time.Duration

	// Logger receives operational messages. Default zap.NewNop().
	Logger *zap.Logger

	// Clock drives the reaper ticker and acquire timeouts. Default
	// the real clock.
	Clock clock.Clock

	// OnConnect runs once per connection after the standard pragmas.
	// Used for schema setup.
	OnConnect func(conn *sqlite.Conn) error
}

type pooledConn struct {
	conn     *sqlite.Conn
	lastUsed time.Time
}

type waiter struct {
	ch chan *sqlite.Conn // buffered 1; closed on pool shutdown
}

// Pool is a bounded pool of SQLite connections with a FIFO waiting
// queue and idle reclamation. Safe for concurrent use; individual
// connections are not.
type Pool struct {
	cfg    PoolConfig
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	idle    []*pooledConn
	waiters []*waiter
	numOpen int
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Open creates the pool, eagerly opens MinConns connections and starts
// the periodic reaper. The caller must Close the pool when done.
func Open(cfg PoolConfig) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: Path is required")
	}
	if cfg.MinConns <= 0 {
		cfg.MinConns = 2
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("sqlite: MinConns %d exceeds MaxConns %d", cfg.MinConns, cfg.MaxConns)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	p := &Pool{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinConns; i++ {
		conn, err := p.openConn()
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
		}
		p.idle = append(p.idle, &pooledConn{conn: conn, lastUsed: p.clock.Now()})
		p.numOpen++
	}

	// Arm the ticker before Open returns so the reap schedule is
	// established once the pool is handed to the caller, matching how
	// Take registers its timeout before releasing the lock.
	ticker := p.clock.NewTicker(cfg.ReapInterval)
	p.wg.Add(1)
	go p.reapLoop(ticker)

	p.logger.Info("sqlite pool opened",
		zap.String("path", cfg.Path),
		zap.Int("min_conns", cfg.MinConns),
		zap.Int("max_conns", cfg.MaxConns),
	)
	return p, nil
}

// Take borrows a connection. An idle connection is returned
// immediately; below MaxConns a new one is opened; otherwise the
// caller joins a FIFO queue and is served by the next Put, or fails
// with ErrAcquireTimeout (or ctx.Err) if unserved in time. The caller
// MUST Put the connection back, typically via defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return pc.conn, nil
	}
	if p.numOpen < p.cfg.MaxConns {
		p.numOpen++
		p.mu.Unlock()
		conn, err := p.openConn()
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, fmt.Errorf("sqlite: opening connection: %w", err)
		}
		return conn, nil
	}
	w := &waiter{ch: make(chan *sqlite.Conn, 1)}
	p.waiters = append(p.waiters, w)
	// Register the timer before releasing the lock so that anyone who
	// observes the waiter via Stats can rely on the timeout being armed.
	timeout := p.clock.After(p.cfg.AcquireTimeout)
	p.mu.Unlock()

	select {
	case conn, ok := <-w.ch:
		if !ok {
			return nil, ErrPoolClosed
		}
		return conn, nil
	case <-timeout:
		return nil, p.abandonWait(w, ErrAcquireTimeout)
	case <-ctx.Done():
		return nil, p.abandonWait(w, ctx.Err())
	}
}

// abandonWait removes w from the queue. If a connection was handed to
// w between the timeout firing and the lock being taken, it goes back
// into the pool.
func (p *Pool) abandonWait(w *waiter, cause error) error {
	p.mu.Lock()
	for i, other := range p.waiters {
		if other == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	select {
	case conn, ok := <-w.ch:
		if ok {
			p.Put(conn)
		}
	default:
	}
	return cause
}

// Put returns a connection to the pool. If a waiter is queued the
// connection is handed over directly, skipping the idle list. Safe to
// call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.numOpen--
		p.mu.Unlock()
		conn.Close()
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.ch <- conn
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, &pooledConn{conn: conn, lastUsed: p.clock.Now()})
	p.mu.Unlock()
}

// Close rejects all pending waiters, closes every idle connection and
// marks the pool unusable. Connections still borrowed are closed as
// they are Put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.numOpen -= len(idle)
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, pc := range idle {
		pc.conn.Close()
	}
	p.logger.Info("sqlite pool closed", zap.String("path", p.cfg.Path))
	return nil
}

// PoolStats is a point-in-time snapshot for tests and observability.
type PoolStats struct {
	Open    int
	Idle    int
	InUse   int
	Waiters int
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Open:    p.numOpen,
		Idle:    len(p.idle),
		InUse:   p.numOpen - len(p.idle),
		Waiters: len(p.waiters),
	}
}

func (p *Pool) reapLoop(ticker *clock.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reap()
		case <-p.done:
			return
		}
	}
}

// reap closes idle connections older than IdleTimeout, never shrinking
// the pool below MinConns.
func (p *Pool) reap() {
	now := p.clock.Now()
	var toClose []*pooledConn

	p.mu.Lock()
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if p.numOpen > p.cfg.MinConns && now.Sub(pc.lastUsed) >= p.cfg.IdleTimeout {
			toClose = append(toClose, pc)
			p.numOpen--
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, pc := range toClose {
		pc.conn.Close()
	}
	if len(toClose) > 0 {
		p.logger.Debug("reaped idle connections", zap.Int("count", len(toClose)))
	}
}

// closeAll tears down eagerly opened connections when Open fails.
func (p *Pool) closeAll() {
	for _, pc := range p.idle {
		pc.conn.Close()
	}
	p.idle = nil
	p.numOpen = 0
}

func (p *Pool) openConn() (*sqlite.Conn, error) {
	conn, err := sqlite.OpenConn(p.cfg.Path,
		sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, err
	}
	if err := prepareConn(conn, p.cfg.OnConnect); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// prepareConn applies the standard pragmas, then the optional
// OnConnect hook.
func prepareConn(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("OnConnect: %w", err)
		}
	}
	return nil
}
