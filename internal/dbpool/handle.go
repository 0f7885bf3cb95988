package dbpool

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// handleState tracks custody of a handle. Guarded by Pool.mu.
type handleState int

const (
	stateIdle handleState = iota
	stateInUse
	stateReturning
	stateClosed
)

// String returns the state name used in logs.
func (s handleState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInUse:
		return "in_use"
	case stateReturning:
		return "returning"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is a leased wrapper around one raw database connection.
//
// The raw connection is never exposed: statements run through Pool.Execute,
// optionally on a handle obtained from Acquire (see WithHandle).
//
// Thread Safety:
//   - A checked-out handle belongs to exactly one caller until it is released.
//   - The pool reference is a back-reference only; the pool owns the handle.
type Handle struct {
	id   string
	conn *sql.Conn
	pool *Pool

	createdAt       time.Time
	lastValidatedAt time.Time
	lastUsedAt      time.Time

	state handleState
}

func newHandle(p *Pool, conn *sql.Conn, now time.Time) *Handle {
	return &Handle{
		id:              uuid.NewString(),
		conn:            conn,
		pool:            p,
		createdAt:       now,
		lastValidatedAt: now,
		state:           stateReturning,
	}
}

// ID returns the handle identifier used in logs.
func (h *Handle) ID() string {
	return h.id
}

// CreatedAt returns when the raw connection was opened.
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// LastValidatedAt returns when the handle last passed the liveness probe.
func (h *Handle) LastValidatedAt() time.Time {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.lastValidatedAt
}

// InUse reports whether the handle is currently checked out.
func (h *Handle) InUse() bool {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.state == stateInUse
}

// age returns how long the raw connection has been open.
func (h *Handle) age(now time.Time) time.Duration {
	return now.Sub(h.createdAt)
}
