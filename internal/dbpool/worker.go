package dbpool

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// workerPool runs blocking driver calls off the caller's goroutine.
//
// The ants pool is nonblocking: when it is saturated or already released the
// task still runs, on a dedicated goroutine. Tasks never wait on other
// submitted tasks, so a saturated pool cannot deadlock. The number of such
// goroutines is bounded by the slot count (see Config.WorkerPoolSize).
type workerPool struct {
	pool   *ants.Pool
	logger Logger
}

func newWorkerPool(size int, logger Logger) (*workerPool, error) {
	wp := &workerPool{logger: logger}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(wp.handlePanic),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	wp.pool = pool
	return wp, nil
}

// submit schedules task on a worker.
func (wp *workerPool) submit(task func()) {
	if err := wp.pool.Submit(task); err != nil {
		wp.logger.Debug("worker pool unavailable, using dedicated goroutine", "error", err)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					wp.handlePanic(r)
				}
			}()
			task()
		}()
	}
}

func (wp *workerPool) handlePanic(r any) {
	wp.logger.Error("panic in database worker", "panic", fmt.Sprint(r))
}

func (wp *workerPool) running() int {
	return wp.pool.Running()
}

func (wp *workerPool) capacity() int {
	return wp.pool.Cap()
}

func (wp *workerPool) release() {
	wp.pool.Release()
}
