// Package reconciler merges the independently delivered attribution and
// deep-link payloads into a single tracking record.
package reconciler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
)

// DefaultDebounce is how long a lone tracking payload waits for a deep link.
const DefaultDebounce = 2500 * time.Millisecond

// Sink receives an emitted payload.
type Sink func(map[string]string)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithPrefix sets the key prefix for merged navigation keys.
func WithPrefix(prefix string) Option {
	return func(r *Reconciler) {
		r.prefix = prefix
	}
}

// WithLaunchState makes the reconciler discard deep links once a launch has
// completed.
func WithLaunchState(ls ports.LaunchState) Option {
	return func(r *Reconciler) {
		r.launch = ls
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reconciler buffers one tracking and one navigation payload per cycle and
// emits the merged tracking record at most once per cycle.
type Reconciler struct {
	onTracking   Sink
	onNavigation Sink
	debounce     time.Duration
	prefix       string
	launch       ports.LaunchState
	logger       *slog.Logger

	mu         sync.Mutex
	tracking   map[string]string
	navigation map[string]string
	timer      *time.Timer
	generation uint64
	closed     bool
}

// New creates a reconciler that emits merged tracking to onTracking and
// accepted deep links to onNavigation.
func New(onTracking, onNavigation Sink, opts ...Option) *Reconciler {
	r := &Reconciler{
		onTracking:   onTracking,
		onNavigation: onNavigation,
		debounce:     DefaultDebounce,
		prefix:       domain.DefaultNavigationPrefix,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReceiveTracking buffers an attribution payload. If a deep link is already
// buffered the merge happens now; otherwise the debounce timer (re)starts.
func (r *Reconciler) ReceiveTracking(data map[string]string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	r.tracking = domain.CloneMap(data)
	if r.navigation != nil {
		merged := r.mergeLocked()
		r.mu.Unlock()
		r.emit(r.onTracking, merged)
		return
	}

	r.stopTimerLocked()
	gen := r.generation
	r.timer = time.AfterFunc(r.debounce, func() { r.fire(gen) })
	r.mu.Unlock()

	r.logger.Debug("tracking buffered", slog.Duration("debounce", r.debounce))
}

// ReceiveNavigation buffers a deep-link payload and forwards it at once.
// Deep links arriving after a completed launch are discarded.
func (r *Reconciler) ReceiveNavigation(data map[string]string) {
	if r.launch != nil && r.launch.HasLaunched() {
		r.logger.Info("discarding deep link after completed launch", slog.Int("keys", len(data)))
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	nav := domain.CloneMap(data)
	r.navigation = nav
	r.stopTimerLocked()

	var merged map[string]string
	if r.tracking != nil {
		merged = r.mergeLocked()
	}
	r.mu.Unlock()

	r.emit(r.onNavigation, domain.CloneMap(nav))
	if merged != nil {
		r.emit(r.onTracking, merged)
	}
}

// Pending reports whether a debounce timer is armed.
func (r *Reconciler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Close stops a pending timer; later payloads are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopTimerLocked()
}

func (r *Reconciler) fire(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.generation || r.tracking == nil {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	merged := r.mergeLocked()
	r.mu.Unlock()

	r.logger.Debug("debounce elapsed without deep link")
	r.emit(r.onTracking, merged)
}

// mergeLocked merges the buffers and starts a new cycle.
func (r *Reconciler) mergeLocked() map[string]string {
	merged := domain.MergeNavigation(r.tracking, r.navigation, r.prefix)
	r.tracking = nil
	r.navigation = nil
	r.stopTimerLocked()
	return merged
}

// stopTimerLocked cancels the pending timer and invalidates any firing
// already in flight.
func (r *Reconciler) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.generation++
}

func (r *Reconciler) emit(sink Sink, data map[string]string) {
	if sink != nil {
		sink(data)
	}
}
