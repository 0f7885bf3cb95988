package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ExecOption adjusts a single Execute or ExecAffected call.
type ExecOption func(*execOptions)

type execOptions struct {
	acquireTimeout time.Duration
	queryTimeout   time.Duration
	handle         *Handle
}

// WithAcquireTimeout overrides AcquireTimeout for one call.
func WithAcquireTimeout(d time.Duration) ExecOption {
	return func(o *execOptions) {
		o.acquireTimeout = d
	}
}

// WithQueryTimeout overrides QueryTimeout for one call.
func WithQueryTimeout(d time.Duration) ExecOption {
	return func(o *execOptions) {
		o.queryTimeout = d
	}
}

// WithHandle runs the statement on a handle the caller already acquired.
// The handle is released when the statement finishes, as with a pooled one.
func WithHandle(h *Handle) ExecOption {
	return func(o *execOptions) {
		o.handle = h
	}
}

// Execute runs a parameterised statement and returns every row.
//
// The statement runs on a pool worker. The handle is released exactly once,
// by the worker, after the driver returns; if the statement outlives its
// timeout the caller gets ErrQueryTimeout straight away and the handle is
// validated when the driver eventually lets go of it.
//
// Parameters:
//   - ctx: Cancels the acquire and the statement
//   - query: SQL text with driver placeholders
//   - params: Positional parameters, may be nil
//   - opts: Per-call overrides
//
// Returns:
//   - Rows: One Row per result row; empty for statements without a result set
//   - error: ErrPoolExhausted, ErrPoolClosed, ErrQueryTimeout or *QueryError
func (p *Pool) Execute(ctx context.Context, query string, params []any, opts ...ExecOption) (Rows, error) {
	var rows Rows
	err := p.run(ctx, query, opts, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		rows, err = queryRows(ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecAffected runs a statement that returns no rows and reports how many
// rows it changed.
func (p *Pool) ExecAffected(ctx context.Context, query string, params []any, opts ...ExecOption) (int64, error) {
	var affected int64
	err := p.run(ctx, query, opts, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, params...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// HealthCheck runs the validation query through the pool.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if p.IsClosed() {
		return ErrPoolClosed
	}
	_, err := p.Execute(ctx, p.cfg.ValidationQuery, nil)
	return err
}

// run leases a handle, runs fn on a worker, and waits for it within the
// query timeout. Results are only read after the worker signals done.
func (p *Pool) run(ctx context.Context, query string, opts []ExecOption, fn func(context.Context, *sql.Conn) error) error {
	o := execOptions{
		acquireTimeout: p.cfg.AcquireTimeout,
		queryTimeout:   p.cfg.QueryTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queryTimeout <= 0 {
		o.queryTimeout = p.cfg.QueryTimeout
	}

	h := o.handle
	if h == nil {
		var err error
		h, err = p.Acquire(ctx, o.acquireTimeout)
		if err != nil {
			return err
		}
	} else if !p.leased(h) {
		return ErrHandleNotLeased
	}

	qctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	start := p.now()
	done := make(chan error, 1)
	p.workers.submit(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("driver panic: %v", r)
			}
			p.releaseInline(h)
			done <- err
		}()
		err = fn(qctx, h.conn)
	})

	select {
	case err := <-done:
		return p.queryResult(qctx, query, o.queryTimeout, start, err)
	case <-qctx.Done():
		select {
		case err := <-done:
			return p.queryResult(qctx, query, o.queryTimeout, start, err)
		default:
		}
		return p.queryAbandoned(qctx, query, h, o.queryTimeout)
	}
}

func (p *Pool) queryResult(qctx context.Context, query string, timeout time.Duration, start time.Time, err error) error {
	elapsed := p.now().Sub(start)
	if err == nil {
		p.logger.Debug("query executed", "duration", elapsed.String())
		return nil
	}
	// Drivers that honour the context report the deadline themselves.
	if errors.Is(qctx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		p.stats.queryTimeouts.Add(1)
		p.logger.Warn("query timed out", "timeout", timeout.String())
		return fmt.Errorf("%w after %s", ErrQueryTimeout, timeout)
	}
	p.logger.Debug("query failed", "duration", elapsed.String(), "error", err)
	return &QueryError{Query: query, Err: err}
}

func (p *Pool) queryAbandoned(qctx context.Context, query string, h *Handle, timeout time.Duration) error {
	if errors.Is(qctx.Err(), context.Canceled) {
		return &QueryError{Query: query, Err: qctx.Err()}
	}
	p.stats.queryTimeouts.Add(1)
	p.logger.Warn("query timed out, connection will be checked on return",
		"handle", h.id, "timeout", timeout.String())
	return fmt.Errorf("%w after %s", ErrQueryTimeout, timeout)
}

func (p *Pool) leased(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return h.pool == p && h.state == stateInUse
}

// queryRows materialises a result set. Runs on a worker.
func queryRows(ctx context.Context, conn *sql.Conn, query string, params []any) (Rows, error) {
	rs, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rs.Close() //nolint:errcheck // Err() below reports iteration failures

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	out := Rows{}
	if len(cols) == 0 {
		for rs.Next() {
		}
		return out, rs.Err()
	}

	for rs.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out = append(out, Row{columns: cols, values: values})
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
