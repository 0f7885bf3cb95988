package dbpool

import (
	"errors"
	"fmt"
)

// Sentinel errors for pool operations.
// Use errors.Is() to check for these errors in calling code.
//
// Callers of Acquire/Execute only ever see ErrPoolExhausted, ErrPoolClosed,
// ErrQueryTimeout or a *QueryError. ErrConfig and ErrConnection are startup
// errors returned by New; ErrValidation never leaves the package.
var (
	// ErrConfig is returned when the pool or driver configuration is malformed.
	// Fatal at startup.
	ErrConfig = errors.New("dbpool: invalid configuration")

	// ErrConnection is returned when the factory cannot open a raw connection.
	ErrConnection = errors.New("dbpool: connection failed")

	// ErrPoolExhausted is returned when no handle became available within the
	// acquire timeout. Callers may retry with backoff (see Retry).
	ErrPoolExhausted = errors.New("dbpool: pool exhausted")

	// ErrPoolClosed is returned by every acquire after CloseAll.
	ErrPoolClosed = errors.New("dbpool: pool is closed")

	// ErrValidation marks a failed liveness probe. Internal only.
	ErrValidation = errors.New("dbpool: connection validation failed")

	// ErrQuery is matched by every *QueryError.
	ErrQuery = errors.New("dbpool: query failed")

	// ErrQueryTimeout is returned when statement execution exceeds its timeout.
	ErrQueryTimeout = errors.New("dbpool: query timed out")

	// ErrHandleNotLeased is returned when a handle passed to WithHandle is not
	// currently checked out from the pool executing the statement.
	ErrHandleNotLeased = errors.New("dbpool: handle is not checked out from this pool")
)

// QueryError wraps a driver error raised while executing a statement.
// It is returned after the handle has been released.
type QueryError struct {
	// Query is the SQL text that failed.
	Query string

	// Err is the underlying driver error.
	Err error
}

// Error implements error.
func (e *QueryError) Error() string {
	return fmt.Sprintf("dbpool: query failed: %v", e.Err)
}

// Unwrap returns the driver error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrQuery.
func (e *QueryError) Is(target error) bool {
	return target == ErrQuery
}

// IsRetryable reports whether err is worth retrying with backoff.
//
// Only pool exhaustion is transient from the caller's point of view; a closed
// pool, a rejected statement or a timed-out statement are surfaced as service
// failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}
