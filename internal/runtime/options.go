package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/metrics"
	"github.com/tjfontaine/launchgate/internal/pkg/config"
	"github.com/tjfontaine/launchgate/internal/storage/memory"
	"github.com/tjfontaine/launchgate/internal/storage/sqlite"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithConfig sets the engine configuration. Without it, config.Default is used.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		e.cfg = cfg
		return nil
	}
}

// WithSQLite persists session state in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(e *Engine) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		e.store = store
		return nil
	}
}

// WithMemoryStore keeps session state in memory only.
func WithMemoryStore() Option {
	return func(e *Engine) error {
		e.store = memory.New()
		return nil
	}
}

// WithStore sets a custom key/value store. The engine closes it on Shutdown.
func WithStore(store ports.KeyValueStore) Option {
	return func(e *Engine) error {
		e.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithMetrics records engine metrics on m instead of a private collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithHTTPClient sets the client used for remote calls and connectivity probes.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) error {
		e.httpClient = c
		return nil
	}
}

// WithRemoteService replaces the HTTP remote client.
func WithRemoteService(remote ports.RemoteService) Option {
	return func(e *Engine) error {
		e.remote = remote
		return nil
	}
}

// WithPrompter sets the host's notification permission prompt. Without one,
// permission requests resolve as declined.
func WithPrompter(p ports.PermissionPrompter) Option {
	return func(e *Engine) error {
		e.prompter = p
		return nil
	}
}

// WithRegistrar sets the push registrar invoked after approval.
func WithRegistrar(r ports.PushRegistrar) Option {
	return func(e *Engine) error {
		e.registrar = r
		return nil
	}
}

// WithDevice sets the device profile. Without one, the profile is built from
// the device section of the config.
func WithDevice(d ports.DeviceProfile) Option {
	return func(e *Engine) error {
		e.device = d
		return nil
	}
}
