package orchestrator

import "sync"

// executor runs submitted functions one at a time, in submission order, on a
// single goroutine. The queue is unbounded so Submit never blocks.
type executor struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
	closed bool
	done   chan struct{}
}

func newExecutor() *executor {
	e := &executor{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit enqueues fn. It reports false once the executor is closed.
func (e *executor) Submit(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return true
}

func (e *executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.notify
			e.mu.Lock()
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		fn()
	}
}

// Close rejects new work, drains what is already queued and waits for the
// loop to exit. It must not be called from the executor goroutine.
func (e *executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	<-e.done
}
