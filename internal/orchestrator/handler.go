// Package orchestrator implements the command side of a launch session: a
// single serialized executor that runs command workflows, publishes domain
// events and marshals asynchronous results back onto itself.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/metrics"
	"github.com/tjfontaine/launchgate/internal/worker"
)

// ErrClosed is returned for commands sent after Close.
var ErrClosed = errors.New("command handler closed")

// Timing holds the session's delays.
type Timing struct {
	// LaunchTimeout bounds the whole decision; it loses to a lock.
	LaunchTimeout time.Duration
	// OrganicDelay lets the attribution SDK settle before fetching install data.
	OrganicDelay time.Duration
}

// DefaultTiming returns a 30s launch timeout and a 5s organic delay.
func DefaultTiming() Timing {
	return Timing{LaunchTimeout: 30 * time.Second, OrganicDelay: 5 * time.Second}
}

// State is the query side the handler consults before acting.
type State interface {
	IsLocked() bool
	ShouldRunOrganicFlow() bool
	Tracking() map[string]string
	Navigation() map[string]string
}

// Dependencies are the collaborators a Handler requires.
type Dependencies struct {
	Vault     ports.Vault
	Remote    ports.RemoteService
	Publisher ports.EventPublisher
	State     State
	Pool      *worker.Pool

	// Optional host collaborators.
	Prompter  ports.PermissionPrompter
	Registrar ports.PushRegistrar
	Device    ports.DeviceProfile
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Vault == nil {
		errs = append(errs, errors.New("vault is required"))
	}
	if d.Remote == nil {
		errs = append(errs, errors.New("remote service is required"))
	}
	if d.Publisher == nil {
		errs = append(errs, errors.New("event publisher is required"))
	}
	if d.State == nil {
		errs = append(errs, errors.New("state reader is required"))
	}
	if d.Pool == nil {
		errs = append(errs, errors.New("worker pool is required"))
	}
	return errors.Join(errs...)
}

// Option configures a Handler.
type Option func(*Handler)

func WithTiming(t Timing) Option {
	return func(h *Handler) {
		if t.LaunchTimeout > 0 {
			h.timing.LaunchTimeout = t.LaunchTimeout
		}
		if t.OrganicDelay >= 0 {
			h.timing.OrganicDelay = t.OrganicDelay
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithClock sets the time source for permission stamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler processes commands one at a time in arrival order.
type Handler struct {
	deps    Dependencies
	timing  Timing
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	exec   *executor
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the executor goroutine.
	timeout   *Timer
	startedAt time.Time
	decided   bool
}

// New creates a Handler and starts its executor.
func New(deps Dependencies, opts ...Option) (*Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		deps:   deps,
		timing: DefaultTiming(),
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/tjfontaine/launchgate/internal/orchestrator"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.exec = newExecutor()
	return h, nil
}

// Handle enqueues cmd and returns immediately.
func (h *Handler) Handle(cmd domain.Command) error {
	if !h.exec.Submit(func() { h.dispatch(cmd) }) {
		return ErrClosed
	}
	return nil
}

// HandleSync enqueues cmd and waits until its synchronous part has run.
// Asynchronous work the command spawns may still be in flight.
func (h *Handler) HandleSync(ctx context.Context, cmd domain.Command) error {
	done := make(chan struct{})
	if !h.exec.Submit(func() {
		defer close(done)
		h.dispatch(cmd)
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the launch timeout and in-flight async work, then stops the
// executor after draining queued commands.
func (h *Handler) Close() {
	h.exec.Submit(func() { h.timeout.Cancel() })
	h.cancel()
	h.exec.Close()
}

func (h *Handler) dispatch(cmd domain.Command) {
	h.metrics.CommandHandled(cmd.Name())
	h.logger.Debug("handling command", slog.String("command", cmd.Name()))

	switch c := cmd.(type) {
	case domain.Initialize:
		h.initialize()
	case domain.Shutdown:
		h.timeout.Cancel()

	case domain.IngestTracking:
		h.publish(domain.TrackingIngested{Data: domain.CloneMap(c.Data)})
		h.persist("tracking", func(ctx context.Context) error { return h.deps.Vault.SaveTracking(ctx, c.Data) })
		h.performValidation()
	case domain.IngestNavigation:
		h.publish(domain.NavigationIngested{Data: domain.CloneMap(c.Data)})
		h.persist("navigation", func(ctx context.Context) error { return h.deps.Vault.SaveNavigation(ctx, c.Data) })

	case domain.PerformValidation:
		h.performValidation()
	case domain.FetchAttribution:
		h.fetchAttribution()
	case domain.FetchDestination:
		h.fetchDestination()

	case domain.RequestNotificationPermission:
		h.requestPermission()
	case domain.ApproveNotifications:
		h.approve()
	case domain.DeclineNotifications:
		h.decline()
	case domain.DeferNotifications:
		h.deferPermission()

	case domain.TransitionToMain:
		h.publish(domain.NavigatedToMain{})
	case domain.TransitionToWeb:
		h.publish(domain.NavigatedToWeb{})

	case domain.PersistTracking:
		h.persist("tracking", func(ctx context.Context) error { return h.deps.Vault.SaveTracking(ctx, c.Data) })
	case domain.PersistNavigation:
		h.persist("navigation", func(ctx context.Context) error { return h.deps.Vault.SaveNavigation(ctx, c.Data) })
	case domain.PersistEndpoint:
		h.persist("endpoint", func(ctx context.Context) error { return h.deps.Vault.SaveEndpoint(ctx, c.URL) })
	case domain.PersistMode:
		h.persist("mode", func(ctx context.Context) error { return h.deps.Vault.SaveMode(ctx, c.Mode) })
	case domain.PersistPermissions:
		h.persist("permissions", func(ctx context.Context) error { return h.deps.Vault.SavePermissions(ctx, c.State) })
	case domain.MarkLaunched:
		h.persist("launched", h.deps.Vault.MarkLaunched)

	case domain.ReportConnectivity:
		if c.Online {
			h.publish(domain.ConnectionEstablished{})
		} else {
			h.publish(domain.ConnectionLost{})
		}

	default:
		h.logger.Warn("unhandled command", slog.String("command", cmd.Name()))
	}
}

// publish emits event and tracks the time to decision.
func (h *Handler) publish(event domain.Event) {
	switch event.(type) {
	case domain.Started:
		h.startedAt = h.now()
		h.decided = false
	case domain.Locked:
		h.observeDecision()
	default:
		if domain.IsFailure(event) && !h.deps.State.IsLocked() {
			h.observeDecision()
		}
	}

	h.deps.Publisher.Publish(event)
	h.metrics.EventPublished(string(event.Kind()))
}

// observeDecision records the first lock or fallback of the session.
func (h *Handler) observeDecision() {
	if h.decided || h.startedAt.IsZero() {
		return
	}
	h.decided = true
	h.metrics.ObserveDecision(h.now().Sub(h.startedAt))
}

// persist runs a write-only storage step. Failures are logged and never
// abort the calling workflow; the vault reports them to metrics.
func (h *Handler) persist(name string, write func(ctx context.Context) error) {
	if err := write(h.ctx); err != nil {
		h.logger.Error("failed to persist",
			slog.String("value", name),
			slog.String("error", err.Error()))
	}
}

// spawn runs work on the pool and hands the continuation it returns back to
// the executor. Submission never blocks the executor: if the pool is
// saturated or released, onRefused runs instead.
func (h *Handler) spawn(op string, work func(ctx context.Context) func(), onRefused func(error)) {
	ctx := h.ctx
	err := h.deps.Pool.Submit(func() {
		next := work(ctx)
		if next == nil {
			return
		}
		if !h.exec.Submit(next) {
			h.logger.Debug("dropping completion after close", slog.String("operation", op))
		}
	})
	if err != nil {
		h.logger.Error("failed to schedule async work",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		if onRefused != nil {
			onRefused(err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
