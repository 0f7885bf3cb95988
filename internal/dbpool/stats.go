package dbpool

import "time"

// Stats is a point-in-time snapshot of pool state and cumulative counters.
type Stats struct {
	PoolSize     int  `json:"pool_size"`
	MaxPoolSize  int  `json:"max_pool_size"`
	TotalCreated int  `json:"total_created"`
	Idle         int  `json:"idle"`
	InUse        int  `json:"in_use"`
	Waiters      int  `json:"waiters"`
	Closed       bool `json:"closed"`

	Created            int64         `json:"created"`
	Discarded          int64         `json:"discarded"`
	ValidationFailures int64         `json:"validation_failures"`
	Recycled           int64         `json:"recycled"`
	AcquireTimeouts    int64         `json:"acquire_timeouts"`
	QueryTimeouts      int64         `json:"query_timeouts"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration_ns"`

	WorkersRunning  int `json:"workers_running"`
	WorkersCapacity int `json:"workers_capacity"`
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		PoolSize:     p.cfg.PoolSize,
		MaxPoolSize:  p.cfg.MaxPoolSize,
		TotalCreated: p.total,
		Idle:         len(p.idle),
		InUse:        p.inUse,
		Waiters:      p.waiters.Len(),
		Closed:       p.closed,
	}
	p.mu.Unlock()

	s.Created = p.stats.created.Load()
	s.Discarded = p.stats.discarded.Load()
	s.ValidationFailures = p.stats.validationFailures.Load()
	s.Recycled = p.stats.recycled.Load()
	s.AcquireTimeouts = p.stats.acquireTimeouts.Load()
	s.QueryTimeouts = p.stats.queryTimeouts.Load()
	s.WaitCount = p.stats.waitCount.Load()
	s.WaitDuration = time.Duration(p.stats.waitNanos.Load())
	s.WorkersRunning = p.workers.running()
	s.WorkersCapacity = p.workers.capacity()
	return s
}
