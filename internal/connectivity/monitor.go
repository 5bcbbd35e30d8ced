// Package connectivity observes network reachability by probing a URL and
// reports online/offline transitions.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultInterval = 10 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Reporter receives reachability transitions.
type Reporter func(online bool)

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) {
		if c != nil {
			m.client = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor probes a URL with HEAD requests. Any HTTP response counts as
// reachable; only transport failures count as offline.
type Monitor struct {
	probeURL string
	report   Reporter
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	known bool
	last  bool
}

// New creates a monitor. An empty probeURL yields a disabled monitor.
func New(probeURL string, report Reporter, opts ...Option) *Monitor {
	m := &Monitor{
		probeURL: probeURL,
		report:   report,
		interval: DefaultInterval,
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether a probe URL is configured.
func (m *Monitor) Enabled() bool {
	return m.probeURL != ""
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("connectivity monitor disabled")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one probe and reports the result if it differs from the
// previous one. The first observation always reports.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	if ctx.Err() != nil {
		return online
	}

	m.mu.Lock()
	changed := !m.known || m.last != online
	m.known = true
	m.last = online
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity changed", slog.Bool("online", online))
		if m.report != nil {
			m.report(online)
		}
	}
	return online
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Warn("invalid probe URL", slog.String("url", m.probeURL), slog.String("error", err.Error()))
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("probe failed", slog.String("error", err.Error()))
		return false
	}
	resp.Body.Close()
	return true
}
