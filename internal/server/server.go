// Package server exposes a launch session over HTTP: commands and producer
// payloads in, read-model state and queries out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/orchestrator"
	"github.com/tjfontaine/launchgate/internal/readmodel"
	"github.com/tjfontaine/launchgate/internal/worker"
)

const maxBodyBytes = 1 << 20

// Engine is the session surface served by the control API.
type Engine interface {
	Execute(cmd domain.Command) error
	ReceiveTracking(data map[string]any) error
	ReceiveNavigation(data map[string]any) error
	Snapshot() readmodel.Snapshot
	Query(q domain.Query) (any, error)
	WorkerStats() worker.Stats
}

// Config controls the listener and request middleware.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	Limiter        *ClientLimiter
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	engine Engine
	srv    *http.Server
}

func New(cfg Config, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(RateLimitMiddleware(cfg.Limiter))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "launchgate")
	})

	s := &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
		engine: engine,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands/{name}", s.handleCommand)
		r.Post("/producers/attribution", s.handleAttribution)
		r.Post("/producers/deeplink", s.handleDeepLink)
		r.Get("/state", s.handleState)
		r.Get("/queries/{name}", s.handleQuery)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Start listens on the configured port until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type commandResponse struct {
	Command string `json:"command"`
}

type producerResponse struct {
	Producer string `json:"producer"`
	Keys     int    `json:"keys"`
}

type queryResponse struct {
	Query  string `json:"query"`
	Result any    `json:"result"`
}

type healthResponse struct {
	Status  string       `json:"status"`
	Workers worker.Stats `json:"workers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Workers: s.engine.WorkerStats()})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	AddLogField(r.Context(), "command", name)

	if !slices.Contains(domain.CommandNames(), name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown command %q", name))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	cmd, err := domain.DecodeCommand(name, raw)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.Execute(cmd); err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, orchestrator.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "session is shut down")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{Command: name})
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeProducer(w, r)
	if !ok {
		return
	}
	if err := s.engine.ReceiveTracking(data); err != nil {
		producerUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, producerResponse{Producer: "attribution", Keys: len(data)})
}

func (s *Server) handleDeepLink(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeProducer(w, r)
	if !ok {
		return
	}
	if err := s.engine.ReceiveNavigation(data); err != nil {
		producerUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, producerResponse{Producer: "deeplink", Keys: len(data)})
}

// producerUnavailable reports input the session cannot take yet or anymore.
func producerUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)
	if errors.Is(err, orchestrator.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, "session is shut down")
		return
	}
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q, err := domain.ParseQuery(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	result, err := s.engine.Query(q)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Query: name, Result: result})
}

// decodeProducer reads a JSON object body. It writes the error response and
// returns false on failure.
func decodeProducer(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var data map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil || data == nil {
		if err == nil {
			err = errors.New("body must be a JSON object")
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
