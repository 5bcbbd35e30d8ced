// Package worker runs detached asynchronous work on a bounded goroutine pool.
package worker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultSize bounds the number of concurrent tasks per session.
const DefaultSize = 16

// Pool is a goroutine pool with unified panic recovery.
type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Running int `json:"running"`
	Free    int `json:"free"`
	Cap     int `json:"cap"`
}

// New creates a pool of the given size. A non-positive size uses DefaultSize.
func New(size int, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{logger: logger}
	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(p.recovered),
		ants.WithNonblocking(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) recovered(v any) {
	p.logger.Error("worker panic recovered",
		slog.Any("panic", v),
		slog.String("stack", string(debug.Stack())))
}

// Submit schedules task without blocking. It fails with ants.ErrPoolOverload
// while every worker is busy and with ants.ErrPoolClosed once released.
func (p *Pool) Submit(task func()) error {
	if err := p.pool.Submit(task); err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}
	return nil
}

// Stats returns the pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{Running: p.pool.Running(), Free: p.pool.Free(), Cap: p.pool.Cap()}
}

// Release stops accepting tasks and waits up to timeout for running ones.
func (p *Pool) Release(timeout time.Duration) error {
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
