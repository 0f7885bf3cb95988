// Package dbpool provides a bounded pool of database connection handles over
// blocking drivers for the threat intelligence service.
//
// This package manages:
//   - Warm-up of PoolSize connections at startup
//   - Checkout and return of handles with FIFO waiting up to MaxPoolSize
//   - Liveness validation on every return and replacement of broken handles
//   - Age-based recycling (handles older than RecycleAge are replaced)
//   - Statement execution with acquire and query timeouts
//   - Orderly shutdown via CloseAll
//
// Concurrency Model:
//
// Driver calls block, so every open, query, validation and close runs on an
// internal ants worker pool sized 2*MaxPoolSize+4 by default. Callers wait on
// channels with their own deadlines and are never stuck behind the driver.
// A statement that outlives its timeout keeps its worker until the driver
// returns; the handle is then released and validated as usual.
//
// Error Handling:
//
// Callers only ever see ErrPoolExhausted (retryable, see Retry),
// ErrPoolClosed, ErrQueryTimeout or a *QueryError. ErrConfig and
// ErrConnection are returned by New at startup.
//
// Usage:
//
//	pool, err := dbpool.New(ctx, cfg, connector, dbpool.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer pool.CloseAll() //nolint:errcheck // shutdown
//
//	rows, err := pool.Execute(ctx, "SELECT name FROM feeds WHERE id = ?", []any{id})
//	if err != nil {
//	    return err
//	}
//	for _, row := range rows {
//	    name, _ := row.Get("name")
//	    ...
//	}
package dbpool
