package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a cancellable delayed task whose callback runs on the executor.
type Timer struct {
	t         *time.Timer
	once      sync.Once
	cancelled atomic.Bool
}

// schedule arms a Timer that submits fn to exec after d. A cancelled Timer
// never runs fn, even when the firing is already queued.
func schedule(exec *executor, d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		exec.Submit(func() {
			if tm.Cancelled() {
				return
			}
			fn()
		})
	})
	return tm
}

// Cancel stops the timer. It is safe to call on a nil Timer, more than once,
// or after the timer fired.
func (t *Timer) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancelled.Store(true)
		t.t.Stop()
	})
}

// Cancelled reports whether Cancel was called.
func (t *Timer) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
