package dbpool

import (
	"fmt"
	"strings"
	"time"
)

// Pool defaults, matching the values the threat intelligence service has
// always shipped with.
const (
	DefaultPoolSize        = 10
	DefaultMaxPoolSize     = 20
	DefaultAcquireTimeout  = 30 * time.Second
	DefaultQueryTimeout    = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultValidateTimeout = 5 * time.Second
	DefaultCloseTimeout    = 5 * time.Second
	DefaultRecycleAge      = time.Hour
	DefaultValidationQuery = "SELECT 1"

	// workerHeadroom is added on top of 2*MaxPoolSize when the worker pool
	// size is derived: each handle can have one query and one close in
	// flight, plus replacements being opened.
	workerHeadroom = 4
)

// Config contains pool sizing and timeout settings.
// Driver selection and credentials live with the Factory.
type Config struct {
	// PoolSize is the number of handles opened at warm-up and the warm set
	// the pool tries to keep after discarding handles.
	PoolSize int

	// MaxPoolSize is the hard ceiling on simultaneously open raw connections.
	MaxPoolSize int

	// AcquireTimeout bounds how long Acquire waits for a handle.
	AcquireTimeout time.Duration

	// QueryTimeout bounds statement execution in Execute.
	QueryTimeout time.Duration

	// ConnectTimeout bounds a single factory call.
	ConnectTimeout time.Duration

	// ValidateTimeout bounds the liveness probe run on release.
	ValidateTimeout time.Duration

	// CloseTimeout bounds closing one raw connection during CloseAll.
	CloseTimeout time.Duration

	// RecycleAge is the maximum handle age before it is replaced on release.
	// A negative value disables recycling.
	RecycleAge time.Duration

	// ValidationQuery is the no-op statement used as the liveness probe.
	ValidationQuery string

	// WorkerPoolSize is the number of goroutines kept for blocking driver
	// calls. Zero derives it from MaxPoolSize.
	//
	// Tasks beyond it spill onto extra goroutines rather than queue. The
	// spill is still bounded: each slot under MaxPoolSize has at most one
	// driver call running (open, query, validate or close), plus closes
	// that CloseAll stopped waiting for.
	WorkerPoolSize int
}

// DefaultConfig returns a Config with the default sizing and timeouts.
func DefaultConfig() Config {
	return Config{
		PoolSize:        DefaultPoolSize,
		MaxPoolSize:     DefaultMaxPoolSize,
		AcquireTimeout:  DefaultAcquireTimeout,
		QueryTimeout:    DefaultQueryTimeout,
		ConnectTimeout:  DefaultConnectTimeout,
		ValidateTimeout: DefaultValidateTimeout,
		CloseTimeout:    DefaultCloseTimeout,
		RecycleAge:      DefaultRecycleAge,
		ValidationQuery: DefaultValidationQuery,
	}
}

// withDefaults fills zero-valued timeouts and derived sizes.
// Sizes are left alone so Validate can reject them.
func (c Config) withDefaults() Config {
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ValidateTimeout == 0 {
		c.ValidateTimeout = DefaultValidateTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.RecycleAge == 0 {
		c.RecycleAge = DefaultRecycleAge
	}
	if strings.TrimSpace(c.ValidationQuery) == "" {
		c.ValidationQuery = DefaultValidationQuery
	}
	if c.WorkerPoolSize == 0 && c.MaxPoolSize > 0 {
		c.WorkerPoolSize = 2*c.MaxPoolSize + workerHeadroom
	}
	return c
}

// Validate checks the pool invariants.
//
// Returns:
//   - error: wrapping ErrConfig with every violation found, or nil
func (c Config) Validate() error {
	var errs []string

	if c.MaxPoolSize < 1 {
		errs = append(errs, "max pool size must be at least 1")
	}
	if c.PoolSize < 0 {
		errs = append(errs, "pool size cannot be negative")
	}
	if c.PoolSize > c.MaxPoolSize {
		errs = append(errs, fmt.Sprintf("pool size %d exceeds max pool size %d", c.PoolSize, c.MaxPoolSize))
	}
	if c.AcquireTimeout < 0 {
		errs = append(errs, "acquire timeout cannot be negative")
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, "query timeout cannot be negative")
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, "connect timeout cannot be negative")
	}
	if c.ValidateTimeout < 0 {
		errs = append(errs, "validate timeout cannot be negative")
	}
	if c.CloseTimeout < 0 {
		errs = append(errs, "close timeout cannot be negative")
	}
	if c.WorkerPoolSize != 0 && c.WorkerPoolSize < c.MaxPoolSize {
		errs = append(errs, fmt.Sprintf("worker pool size %d is below max pool size %d", c.WorkerPoolSize, c.MaxPoolSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}
