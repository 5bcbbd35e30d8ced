package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/orchestrator"
	"github.com/tjfontaine/launchgate/internal/readmodel"
	"github.com/tjfontaine/launchgate/internal/worker"
)

type fakeEngine struct {
	mu         sync.Mutex
	commands   []domain.Command
	tracking   []map[string]any
	navigation []map[string]any
	execErr    error
	receiveErr error
	snapshot   readmodel.Snapshot
	stats      worker.Stats
}

func (f *fakeEngine) Execute(cmd domain.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return f.execErr
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeEngine) ReceiveTracking(data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiveErr != nil {
		return f.receiveErr
	}
	f.tracking = append(f.tracking, data)
	return nil
}

func (f *fakeEngine) ReceiveNavigation(data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiveErr != nil {
		return f.receiveErr
	}
	f.navigation = append(f.navigation, data)
	return nil
}

func (f *fakeEngine) WorkerStats() worker.Stats {
	return f.stats
}

func (f *fakeEngine) Snapshot() readmodel.Snapshot {
	return f.snapshot
}

func (f *fakeEngine) Query(q domain.Query) (any, error) {
	switch q {
	case domain.QueryIsLocked:
		return f.snapshot.Locked, nil
	case domain.QueryDestination:
		return f.snapshot.Destination, nil
	}
	return nil, nil
}

func newTestServer(engine Engine, cfg Config) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, engine, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCommand_Accepted(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(engine, Config{})

	rec := do(t, s, http.MethodPost, "/v1/commands/ingest_tracking", `{"data":{"af_status":"Organic"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp commandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Command != "ingest_tracking" {
		t.Errorf("command = %q", resp.Command)
	}

	if len(engine.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(engine.commands))
	}
	cmd, ok := engine.commands[0].(domain.IngestTracking)
	if !ok {
		t.Fatalf("command type = %T", engine.commands[0])
	}
	if cmd.Data["af_status"] != "Organic" {
		t.Errorf("data = %v", cmd.Data)
	}
}

func TestCommand_PayloadFree(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(engine, Config{})

	rec := do(t, s, http.MethodPost, "/v1/commands/initialize", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := engine.commands[0].(domain.Initialize); !ok {
		t.Errorf("command type = %T", engine.commands[0])
	}
}

func TestCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		execErr error
		want    int
	}{
		{name: "unknown", path: "/v1/commands/launch_rockets", want: http.StatusNotFound},
		{name: "missing payload", path: "/v1/commands/persist_endpoint", want: http.StatusBadRequest},
		{name: "bad payload", path: "/v1/commands/persist_endpoint", body: `{"url":`, want: http.StatusBadRequest},
		{name: "closed", path: "/v1/commands/initialize", execErr: orchestrator.ErrClosed, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{execErr: tt.execErr}
			s := newTestServer(engine, Config{})

			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected error body, got %v / %q", err, resp.Error)
			}
		})
	}
}

func TestProducers(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(engine, Config{})

	rec := do(t, s, http.MethodPost, "/v1/producers/attribution", `{"af_status":"Non-organic","is_first_launch":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("attribution status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/v1/producers/deeplink", `{"campaign":"spring"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("deeplink status = %d", rec.Code)
	}

	if len(engine.tracking) != 1 || engine.tracking[0]["af_status"] != "Non-organic" {
		t.Errorf("tracking = %v", engine.tracking)
	}
	if engine.tracking[0]["is_first_launch"] != true {
		t.Errorf("is_first_launch = %v", engine.tracking[0]["is_first_launch"])
	}
	if len(engine.navigation) != 1 || engine.navigation[0]["campaign"] != "spring" {
		t.Errorf("navigation = %v", engine.navigation)
	}
}

func TestProducers_RejectNonObject(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(engine, Config{})

	for _, body := range []string{`[1,2]`, `null`, `"x"`, `{`} {
		rec := do(t, s, http.MethodPost, "/v1/producers/attribution", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if len(engine.tracking) != 0 {
		t.Errorf("tracking delivered: %v", engine.tracking)
	}
}

func TestProducers_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not started", errors.New("engine not started"), "engine not started"},
		{"closed", orchestrator.ErrClosed, "session is shut down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeEngine{receiveErr: tt.err}, Config{})
			for _, path := range []string{"/v1/producers/attribution", "/v1/producers/deeplink"} {
				rec := do(t, s, http.MethodPost, path, `{"campaign":"spring"}`)
				if rec.Code != http.StatusServiceUnavailable {
					t.Errorf("%s status = %d, want 503", path, rec.Code)
				}
				if !strings.Contains(rec.Body.String(), tt.want) {
					t.Errorf("%s body = %q, want %q", path, rec.Body.String(), tt.want)
				}
			}
		})
	}
}

func TestStateAndQueries(t *testing.T) {
	engine := &fakeEngine{snapshot: readmodel.Snapshot{
		Phase:       domain.Ready("https://dest.example.com"),
		Destination: "https://dest.example.com",
		Locked:      true,
	}}
	s := newTestServer(engine, Config{})

	rec := do(t, s, http.MethodGet, "/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d", rec.Code)
	}
	var state map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state["phase"] != "ready" || state["locked"] != true {
		t.Errorf("state = %v", state)
	}

	rec = do(t, s, http.MethodGet, "/v1/queries/is_locked", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d", rec.Code)
	}
	var q map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&q); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if q["query"] != "is_locked" || q["result"] != true {
		t.Errorf("query = %v", q)
	}

	rec = do(t, s, http.MethodGet, "/v1/queries/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown query status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "launchgate_commands_total 1\n")
	})
	engine := &fakeEngine{stats: worker.Stats{Running: 1, Free: 15, Cap: 16}}
	s := newTestServer(engine, Config{Metrics: metrics})

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var health struct {
		Status  string       `json:"status"`
		Workers worker.Stats `json:"workers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Workers != engine.stats {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "launchgate_commands_total") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}

	s = newTestServer(&fakeEngine{}, Config{})
	if rec := do(t, s, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler status = %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(&fakeEngine{}, Config{})

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing generated request ID")
	}

	const id = "0b7e6a0c-3c1a-4a57-9f7e-1d2f3b4c5d6e"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != id {
		t.Errorf("request ID = %q, want %q", got, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got == "not-a-uuid" {
		t.Error("malformed request ID was kept")
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("deadline = %v, %v", deadline, ok)
	}

	ok = false
	h = TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Error("zero timeout should not set a deadline")
	}
}
