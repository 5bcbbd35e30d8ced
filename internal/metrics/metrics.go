// Package metrics exposes Prometheus instruments for a launch session.
// Every method is safe on a nil *Collector, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launchgate"

// Collector owns a private registry so several engines can coexist in one process.
type Collector struct {
	registry      *prometheus.Registry
	commands      *prometheus.CounterVec
	events        *prometheus.CounterVec
	remote        *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	decision      prometheus.Histogram
}

// New creates a collector with all instruments registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed by the command handler.",
		}, []string{"command"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published on the event bus.",
		}, []string{"event"}),
		remote: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote service calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "destination_attempts_total",
			Help:      "Destination resolution attempts by HTTP status.",
		}, []string{"status"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed writes to the key/value store.",
		}, []string{"key"}),
		decision: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_seconds",
			Help:      "Time from session start to the routing decision.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
	}

	c.registry.MustRegister(c.commands, c.events, c.remote, c.attempts, c.persistErrors, c.decision)
	return c
}

// Registry exposes the underlying registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CommandHandled(name string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(name).Inc()
}

func (c *Collector) EventPublished(kind string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(kind).Inc()
}

// RemoteRequest records a finished remote call; outcome is "success" or "failure".
func (c *Collector) RemoteRequest(operation, outcome string) {
	if c == nil {
		return
	}
	c.remote.WithLabelValues(operation, outcome).Inc()
}

// DestinationAttempt records one destination resolution attempt. status is the
// HTTP status code, or "error" when no response was received.
func (c *Collector) DestinationAttempt(status string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(status).Inc()
}

func (c *Collector) PersistenceError(key string) {
	if c == nil {
		return
	}
	c.persistErrors.WithLabelValues(key).Inc()
}

// ObserveDecision records how long the routing decision took.
func (c *Collector) ObserveDecision(d time.Duration) {
	if c == nil {
		return
	}
	c.decision.Observe(d.Seconds())
}
