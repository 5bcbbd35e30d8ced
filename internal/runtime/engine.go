// Package runtime provides the Engine, the composition root of a launch
// session. It binds the reconciler, command handler, event bus and read model
// and exposes a command/query API plus observable flags.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/launchgate/internal/adapters/events/direct"
	"github.com/tjfontaine/launchgate/internal/api/remote"
	"github.com/tjfontaine/launchgate/internal/connectivity"
	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/metrics"
	"github.com/tjfontaine/launchgate/internal/orchestrator"
	"github.com/tjfontaine/launchgate/internal/persistence"
	"github.com/tjfontaine/launchgate/internal/pkg/config"
	"github.com/tjfontaine/launchgate/internal/pkg/safehttp"
	"github.com/tjfontaine/launchgate/internal/readmodel"
	"github.com/tjfontaine/launchgate/internal/reconciler"
	"github.com/tjfontaine/launchgate/internal/storage/memory"
	"github.com/tjfontaine/launchgate/internal/storage/sqlite"
	"github.com/tjfontaine/launchgate/internal/worker"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	remoteTimeout          = 30 * time.Second
)

// ErrNotStarted is returned for producer input received before Start has
// restored the persisted session.
var ErrNotStarted = errors.New("engine not started")

// Engine runs one launch session.
type Engine struct {
	// Dependencies (injected via options)
	cfg        *config.Config
	store      ports.KeyValueStore
	remote     ports.RemoteService
	prompter   ports.PermissionPrompter
	registrar  ports.PushRegistrar
	device     ports.DeviceProfile
	metrics    *metrics.Collector
	httpClient *http.Client
	logger     *slog.Logger

	// Internal state
	sessionID  string
	vault      *persistence.Vault
	bus        *direct.Bus
	model      *readmodel.Model
	pool       *worker.Pool
	handler    *orchestrator.Handler
	reconciler *reconciler.Reconciler
	monitor    *connectivity.Monitor

	// Lifecycle management
	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	ready    bool
	shutdown bool
}

// New creates an Engine with the given options. Storage defaults to the
// configured backend and the remote service to the HTTP client.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:    slog.Default(),
		sessionID: uuid.NewString(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	e.logger = e.logger.With(slog.String("session_id", e.sessionID))

	if e.store == nil {
		store, err := openStore(e.cfg.Storage)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	if err := e.wire(); err != nil {
		_ = e.store.Close()
		return nil, err
	}
	return e, nil
}

func openStore(cfg config.StorageConfig) (ports.KeyValueStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// wire builds the session graph. The read model subscribes to the bus before
// anything can publish, so it observes every event.
func (e *Engine) wire() error {
	e.vault = persistence.New(e.store,
		persistence.WithNamespace(e.cfg.Storage.Namespace),
		persistence.WithLogger(e.logger),
		persistence.WithErrorObserver(func(key string, err error) {
			e.metrics.PersistenceError(key)
		}),
	)

	if e.device == nil {
		e.device = &staticDevice{cfg: e.cfg.Device, vault: e.vault}
	}
	if e.registrar == nil {
		e.registrar = &tokenRegistrar{token: e.cfg.Device.PushToken, vault: e.vault, logger: e.logger}
	}
	if e.remote == nil {
		e.remote = e.newRemoteClient()
	}

	e.bus = direct.NewBus()
	e.model = readmodel.New()
	e.bus.Subscribe(e.model.Apply)

	pool, err := worker.New(e.cfg.Worker.PoolSize, e.logger)
	if err != nil {
		return err
	}
	e.pool = pool

	handler, err := orchestrator.New(orchestrator.Dependencies{
		Vault:     e.vault,
		Remote:    e.remote,
		Publisher: e.bus,
		State:     e.model,
		Pool:      e.pool,
		Prompter:  e.prompter,
		Registrar: e.registrar,
		Device:    e.device,
	},
		orchestrator.WithTiming(orchestrator.Timing{
			LaunchTimeout: e.cfg.Session.LaunchTimeout,
			OrganicDelay:  e.cfg.Session.OrganicDelay,
		}),
		orchestrator.WithLogger(e.logger),
		orchestrator.WithMetrics(e.metrics),
	)
	if err != nil {
		_ = e.pool.Release(0)
		return fmt.Errorf("create command handler: %w", err)
	}
	e.handler = handler

	e.reconciler = reconciler.New(
		func(data map[string]string) { e.submit(domain.IngestTracking{Data: data}) },
		func(data map[string]string) { e.submit(domain.IngestNavigation{Data: data}) },
		reconciler.WithDebounce(e.cfg.Session.Debounce),
		reconciler.WithPrefix(e.cfg.Session.NavigationPrefix),
		reconciler.WithLaunchState(e.model),
		reconciler.WithLogger(e.logger),
	)

	monitorOpts := []connectivity.Option{
		connectivity.WithInterval(e.cfg.Connectivity.Interval),
		connectivity.WithLogger(e.logger),
	}
	if e.httpClient != nil {
		monitorOpts = append(monitorOpts, connectivity.WithHTTPClient(e.httpClient))
	}
	e.monitor = connectivity.New(e.cfg.Connectivity.ProbeURL, func(online bool) {
		e.submit(domain.ReportConnectivity{Online: online})
	}, monitorOpts...)

	return nil
}

func (e *Engine) newRemoteClient() *remote.Client {
	rc := e.cfg.Remote
	opts := []remote.ClientOption{
		remote.WithLogger(e.logger),
		remote.WithMetrics(e.metrics),
	}
	if len(rc.RetryDelays) > 0 {
		opts = append(opts, remote.WithRetryPolicy(remote.RetryPolicy{Delays: rc.RetryDelays}))
	}
	switch {
	case e.httpClient != nil:
		opts = append(opts, remote.WithHTTPClient(e.httpClient))
	case rc.DenyPrivateNetworks:
		opts = append(opts, remote.WithHTTPClient(&http.Client{
			Timeout:   remoteTimeout,
			Transport: otelhttp.NewTransport(safehttp.NewTransport()),
		}))
	}
	return remote.NewClient(remote.Config{
		ValidationURL:      rc.ValidationURL,
		AttributionBaseURL: rc.AttributionBaseURL,
		AppID:              rc.AppID,
		DevKey:             rc.DevKey,
		DestinationURL:     rc.DestinationURL,
		UserAgent:          rc.UserAgent,
		Platform:           rc.Platform,
		BundleID:           rc.BundleID,
		ProjectID:          rc.ProjectID,
	}, e.device, opts...)
}

// SessionID identifies this engine's session in logs and traces.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Metrics returns the engine's collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Start initializes the session and waits until the persisted snapshot has
// been restored. The connectivity monitor runs until Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return orchestrator.ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	monitorCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.handler.HandleSync(ctx, domain.Initialize{}); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()

	if e.monitor.Enabled() {
		go e.monitor.Run(monitorCtx)
	}

	e.logger.Info("session started",
		slog.Bool("first_launch", e.model.FirstLaunch()),
		slog.String("mode", e.model.Mode()))
	return nil
}

// Execute sends cmd to the command handler without waiting for it.
func (e *Engine) Execute(cmd domain.Command) error {
	return e.handler.Handle(cmd)
}

// ExecuteSync sends cmd and waits until its synchronous part has run.
func (e *Engine) ExecuteSync(ctx context.Context, cmd domain.Command) error {
	return e.handler.HandleSync(ctx, cmd)
}

func (e *Engine) submit(cmd domain.Command) {
	if err := e.handler.Handle(cmd); err != nil {
		e.logger.Debug("command dropped",
			slog.String("command", cmd.Name()),
			slog.String("error", err.Error()))
	}
}

// ReceiveTracking hands an attribution payload to the reconciler. It fails
// with ErrNotStarted until Start has returned.
func (e *Engine) ReceiveTracking(data map[string]any) error {
	if err := e.acceptInput(); err != nil {
		return err
	}
	e.reconciler.ReceiveTracking(domain.NormalizePayload(data))
	return nil
}

// ReceiveNavigation hands a deep-link payload to the reconciler. Whether the
// link is kept depends on the restored launch flag, so input is refused with
// ErrNotStarted until Start has returned.
func (e *Engine) ReceiveNavigation(data map[string]any) error {
	if err := e.acceptInput(); err != nil {
		return err
	}
	e.reconciler.ReceiveNavigation(domain.NormalizePayload(data))
	return nil
}

func (e *Engine) acceptInput() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.shutdown:
		return orchestrator.ErrClosed
	case !e.ready:
		return ErrNotStarted
	}
	return nil
}

// Query answers a read-model query.
func (e *Engine) Query(q domain.Query) (any, error) {
	return e.model.Query(q)
}

// Snapshot returns the current read model.
func (e *Engine) Snapshot() readmodel.Snapshot {
	return e.model.Snapshot()
}

// Flags returns the current presentation flags.
func (e *Engine) Flags() readmodel.Flags {
	return e.model.Flags()
}

// WorkerStats reports the occupancy of the session's worker pool.
func (e *Engine) WorkerStats() worker.Stats {
	return e.pool.Stats()
}

// Subscribe delivers every event published from now on. Handlers run on the
// session executor and must not block.
func (e *Engine) Subscribe(h func(domain.Event)) (unsubscribe func()) {
	sub := e.bus.Subscribe(direct.Handler(h))
	return sub.Unsubscribe
}

// WatchFlags calls fn with the flags after every event that changed them.
// fn runs on the session executor and must not block.
func (e *Engine) WatchFlags(fn func(readmodel.Flags)) (unsubscribe func()) {
	var last readmodel.Flags
	var seen bool
	return e.Subscribe(func(domain.Event) {
		flags := e.model.Flags()
		if seen && flags == last {
			return
		}
		seen, last = true, flags
		fn(flags)
	})
}

// Shutdown stops the session: pending reconciliation is dropped, the launch
// timeout and in-flight work are cancelled and storage is closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil
	}
	e.shutdown = true
	cancel := e.cancel
	e.mu.Unlock()

	e.logger.Info("shutting down session")

	if cancel != nil {
		cancel()
	}
	e.reconciler.Close()

	var errs []error
	if err := e.handler.HandleSync(ctx, domain.Shutdown{}); err != nil && !errors.Is(err, orchestrator.ErrClosed) {
		errs = append(errs, fmt.Errorf("shutdown command: %w", err))
	}
	e.handler.Close()

	timeout := defaultShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := e.pool.Release(timeout); err != nil {
		errs = append(errs, fmt.Errorf("release worker pool: %w", err))
	}
	if err := e.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}

	e.logger.Info("session shutdown complete")
	return errors.Join(errs...)
}
