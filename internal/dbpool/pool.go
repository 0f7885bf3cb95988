package dbpool

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the pool.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Factory opens one raw connection to the backing database.
// Open blocks; it is always called on a pool worker.
type Factory interface {
	Open(ctx context.Context) (*sql.Conn, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context) (*sql.Conn, error)

// Open calls f(ctx).
func (f FactoryFunc) Open(ctx context.Context) (*sql.Conn, error) {
	return f(ctx)
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithLogger sets the pool logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// withClock overrides the time source.
func withClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// grant is what a waiter receives: a handle, a closed pool, or a nudge to
// retry because a slot under MaxPoolSize was freed.
type grant struct {
	handle *Handle
	closed bool
	retry  bool
}

type waiter struct {
	ready chan grant // buffered(1); at most one grant is ever sent
	elem  *list.Element
}

type createResult struct {
	handle *Handle
	err    error
}

// counters are cumulative and read without the pool lock.
type counters struct {
	created            atomic.Int64
	discarded          atomic.Int64
	validationFailures atomic.Int64
	recycled           atomic.Int64
	acquireTimeouts    atomic.Int64
	queryTimeouts      atomic.Int64
	waitCount          atomic.Int64
	waitNanos          atomic.Int64
}

// Pool is a bounded set of reusable connection handles over a blocking
// database driver.
//
// Every driver call (open, query, validate, close) runs on an internal worker
// pool so callers can always be released by their own timeouts.
//
// Invariants (all guarded by mu):
//   - 0 <= total <= MaxPoolSize, where total counts live handles plus
//     creations in flight
//   - every handle is in exactly one of idle, checked out, returning
//   - once closed is set it never clears and idle stays empty
type Pool struct {
	cfg     Config
	factory Factory
	workers *workerPool
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	idle    []*Handle
	total   int
	inUse   int
	waiters list.List // of *waiter, FIFO
	closed  bool

	stats counters
}

// New builds a pool and warms it up.
//
// Warm-up opens PoolSize handles concurrently. Individual failures are logged
// and skipped; New fails only if PoolSize >= 1 and no handle could be opened.
//
// Parameters:
//   - ctx: Bounds warm-up in addition to ConnectTimeout per connection
//   - cfg: Pool sizing and timeouts; zero timeouts take defaults
//   - factory: Opens raw connections
//   - opts: Optional settings such as WithLogger
//
// Returns:
//   - *Pool: Ready pool
//   - error: ErrConfig or ErrConnection
func New(ctx context.Context, cfg Config, factory Factory, opts ...Option) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: connection factory is required", ErrConfig)
	}

	p := &Pool{
		cfg:     cfg,
		factory: factory,
		logger:  noopLogger{},
		now:     time.Now,
	}
	p.waiters.Init()
	for _, opt := range opts {
		opt(p)
	}

	workers, err := newWorkerPool(cfg.WorkerPoolSize, p.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	p.workers = workers

	if err := p.warmUp(ctx); err != nil {
		workers.release()
		return nil, err
	}
	return p, nil
}

func (p *Pool) warmUp(ctx context.Context) error {
	n := p.cfg.PoolSize
	if n == 0 {
		p.logger.Info("database pool ready", "warm", 0, "max", p.cfg.MaxPoolSize)
		return nil
	}

	p.mu.Lock()
	p.total += n
	p.mu.Unlock()

	results := make(chan createResult, n)
	for range n {
		p.workers.submit(func() {
			h, err := p.open(ctx)
			results <- createResult{handle: h, err: err}
		})
	}

	var created int
	var lastErr error
	for range n {
		r := <-results
		if r.err != nil {
			p.releaseSlot()
			lastErr = r.err
			p.logger.Warn("warm-up connection failed", "error", r.err)
			continue
		}
		created++
		p.checkin(r.handle)
	}

	if created == 0 {
		return fmt.Errorf("no connection opened during warm-up: %w", lastErr)
	}
	p.logger.Info("database pool ready", "warm", created, "requested", n, "max", p.cfg.MaxPoolSize)
	return nil
}

// open runs the factory bounded by ConnectTimeout. Called on a worker.
func (p *Pool) open(ctx context.Context) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	conn, err := p.factory.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	h := newHandle(p, conn, p.now())
	p.stats.created.Add(1)
	p.logger.Debug("database connection opened", "handle", h.id)
	return h, nil
}

// Acquire checks out a handle, waiting up to timeout (AcquireTimeout when
// timeout <= 0).
//
// Order of preference: an idle handle, a new handle while total is below
// MaxPoolSize, then a FIFO wait for a released handle. A caller whose wait
// expires leaves the pool unchanged: a handle granted during cancellation is
// put back.
//
// Returns:
//   - *Handle: Checked-out handle; pass it to Release exactly once
//   - error: ErrPoolExhausted, ErrPoolClosed, or a wrapped context.Canceled
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		waitStart time.Time
		skipGrow  bool
		lastErr   error
	)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			h := p.idle[n-1]
			p.idle[n-1] = nil
			p.idle = p.idle[:n-1]
			p.markInUseLocked(h)
			p.mu.Unlock()
			p.recordWait(waitStart)
			return h, nil
		}

		if !skipGrow && p.total < p.cfg.MaxPoolSize {
			p.total++
			p.mu.Unlock()

			h, err := p.grow(ctx)
			if err == nil {
				p.recordWait(waitStart)
				return h, nil
			}
			if ctx.Err() != nil {
				return nil, p.acquireError(ctx, lastErr)
			}
			// The database refused a new connection; wait for a release
			// instead of hammering it.
			lastErr = err
			skipGrow = true
			continue
		}

		w := &waiter{ready: make(chan grant, 1)}
		w.elem = p.waiters.PushBack(w)
		p.mu.Unlock()

		if waitStart.IsZero() {
			waitStart = p.now()
		}

		select {
		case g := <-w.ready:
			switch {
			case g.handle != nil:
				p.recordWait(waitStart)
				return g.handle, nil
			case g.closed:
				return nil, ErrPoolClosed
			}
			skipGrow = false
		case <-ctx.Done():
			p.abandon(w)
			return nil, p.acquireError(ctx, lastErr)
		}
	}
}

// grow opens a new handle for a caller that already reserved a slot.
// If the caller gives up first, the handle is checked in for others.
func (p *Pool) grow(ctx context.Context) (*Handle, error) {
	result := make(chan createResult, 1)
	p.workers.submit(func() {
		h, err := p.open(context.Background())
		result <- createResult{handle: h, err: err}
	})

	select {
	case r := <-result:
		if r.err != nil {
			p.releaseSlot()
			p.logger.Warn("database connection failed", "error", r.err)
			return nil, r.err
		}
		p.mu.Lock()
		p.markInUseLocked(r.handle)
		p.mu.Unlock()
		return r.handle, nil
	case <-ctx.Done():
		go func() {
			r := <-result
			if r.err != nil {
				p.releaseSlot()
				p.logger.Warn("database connection failed", "error", r.err)
				return
			}
			p.checkin(r.handle)
		}()
		return nil, ctx.Err()
	}
}

// abandon removes a waiter whose context ended. If a grant was already
// committed to it, the grant is passed on so nothing leaks.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	g := <-w.ready
	switch {
	case g.handle != nil:
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
		p.checkin(g.handle)
	case g.retry:
		p.mu.Lock()
		p.wakeRetryLocked()
		p.mu.Unlock()
	}
}

func (p *Pool) acquireError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("dbpool: acquire cancelled: %w", ctx.Err())
	}
	p.stats.acquireTimeouts.Add(1)
	p.logger.Warn("timed out waiting for database connection", "max", p.cfg.MaxPoolSize)
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrPoolExhausted, cause)
	}
	return ErrPoolExhausted
}

func (p *Pool) recordWait(start time.Time) {
	if start.IsZero() {
		return
	}
	p.stats.waitCount.Add(1)
	p.stats.waitNanos.Add(int64(p.now().Sub(start)))
}

// Release returns a handle to the pool.
//
// The handle is recycled if it is older than RecycleAge, otherwise validated.
// Release waits at most ValidateTimeout for that decision.
// A valid handle goes to the longest waiting caller or back to idle; an
// invalid one is closed and replaced. Releasing a handle that is not checked
// out is logged and ignored.
func (p *Pool) Release(h *Handle) {
	if !p.beginRelease(h) {
		return
	}
	done := make(chan struct{})
	p.workers.submit(func() {
		defer close(done)
		p.finishRelease(h)
	})

	// A probe stuck in the driver finishes on its worker.
	timer := time.NewTimer(p.cfg.ValidateTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("release still validating after timeout", "handle", h.id, "timeout", p.cfg.ValidateTimeout.String())
	}
}

// releaseInline is Release for code already running on a worker.
func (p *Pool) releaseInline(h *Handle) {
	if p.beginRelease(h) {
		p.finishRelease(h)
	}
}

func (p *Pool) beginRelease(h *Handle) bool {
	if h == nil {
		return false
	}
	p.mu.Lock()
	if h.pool != p || h.state != stateInUse {
		state := h.state
		p.mu.Unlock()
		p.logger.Warn("ignoring release of handle not checked out", "handle", h.id, "state", state.String())
		return false
	}
	h.state = stateReturning
	h.lastUsedAt = p.now()
	p.inUse--
	p.mu.Unlock()
	return true
}

// finishRelease decides the fate of a returning handle. Runs on a worker.
func (p *Pool) finishRelease(h *Handle) {
	if p.IsClosed() {
		p.discard(h, "pool closed")
		return
	}
	if p.expired(h) {
		p.stats.recycled.Add(1)
		p.logger.Debug("recycling database connection", "handle", h.id, "age", h.age(p.now()).String())
		p.discard(h, "recycled")
		return
	}
	if !p.isValid(h) {
		p.discard(h, "validation failed")
		return
	}
	p.checkin(h)
}

// checkin places a live, not-checked-out handle back in circulation.
func (p *Pool) checkin(h *Handle) {
	p.mu.Lock()
	if p.closed {
		h.state = stateClosed
		p.mu.Unlock()
		p.workers.submit(func() {
			p.closeConn(h)
			p.releaseSlot()
		})
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		p.markInUseLocked(h)
		p.mu.Unlock()
		w.ready <- grant{handle: h}
		return
	}
	h.state = stateIdle
	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// discard closes a handle and, while the pool is below its warm size or
// callers are waiting, opens a replacement. Runs on a worker.
//
// The slot stays reserved until the raw connection has closed, so open
// connections never exceed MaxPoolSize.
func (p *Pool) discard(h *Handle, reason string) {
	p.mu.Lock()
	h.state = stateClosed
	p.mu.Unlock()

	p.stats.discarded.Add(1)
	p.logger.Debug("database connection discarded", "handle", h.id, "reason", reason)
	p.closeConn(h)

	p.mu.Lock()
	p.total--
	replace := !p.closed && p.total < p.cfg.MaxPoolSize &&
		(p.total < p.cfg.PoolSize || p.waiters.Len() > 0)
	if replace {
		p.total++
	}
	p.mu.Unlock()

	if replace {
		p.replace()
	}
}

// replace opens a connection into an already reserved slot.
func (p *Pool) replace() {
	p.workers.submit(func() {
		h, err := p.open(context.Background())
		if err != nil {
			p.releaseSlot()
			p.logger.Warn("replacement connection failed", "error", err)
			return
		}
		p.logger.Debug("replacement connection opened", "handle", h.id)
		p.checkin(h)
	})
}

// releaseSlot gives back a reserved slot and lets the first waiter try to
// open a connection into it.
func (p *Pool) releaseSlot() {
	p.mu.Lock()
	p.total--
	p.wakeRetryLocked()
	p.mu.Unlock()
}

// closeConn closes the raw connection. It blocks for as long as the driver
// does.
func (p *Pool) closeConn(h *Handle) {
	if err := h.conn.Close(); err != nil {
		p.logger.Debug("closing database connection", "handle", h.id, "error", err)
	}
}

// closeWithTimeout closes the raw connection, giving up after timeout.
func (p *Pool) closeWithTimeout(h *Handle, timeout time.Duration) error {
	done := make(chan error, 1)
	p.workers.submit(func() {
		done <- h.conn.Close()
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("close did not finish within %s", timeout)
	}
}

func (p *Pool) markInUseLocked(h *Handle) {
	h.state = stateInUse
	h.lastUsedAt = p.now()
	p.inUse++
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter) //nolint:forcetypeassert // list only holds *waiter
	w.elem = nil
	return w
}

func (p *Pool) wakeRetryLocked() {
	if w := p.popWaiterLocked(); w != nil {
		w.ready <- grant{retry: true}
	}
}

// CloseAll shuts the pool down. It is idempotent.
//
// New acquires fail with ErrPoolClosed immediately and current waiters are
// woken with it. Idle handles are closed here, each bounded by CloseTimeout;
// checked-out handles are closed when their holders release them.
// Close failures are logged, never returned.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	for _, h := range idle {
		h.state = stateClosed
	}

	woken := p.waiters.Len()
	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ready <- grant{closed: true}
	}
	p.mu.Unlock()

	var failed int
	for _, h := range idle {
		if err := p.closeWithTimeout(h, p.cfg.CloseTimeout); err != nil {
			failed++
			p.logger.Warn("error closing database connection", "handle", h.id, "error", err)
		}
	}

	p.workers.release()
	p.logger.Info("database pool closed", "closed", len(idle)-failed, "failed", failed, "waiters_woken", woken)
	return nil
}

// IsClosed reports whether CloseAll has been called.
func (p *Pool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// IdleCount returns the number of idle handles.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// TotalCreated returns live handles plus creations in flight.
func (p *Pool) TotalCreated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Config returns the effective configuration, defaults applied.
func (p *Pool) Config() Config {
	return p.cfg
}
