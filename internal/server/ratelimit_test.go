package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientLimiter_PerClientBuckets(t *testing.T) {
	l := NewClientLimiter(1, 2, time.Minute)
	now := time.Unix(1700000000, 0)

	if !l.Allow("10.0.0.1", now) || !l.Allow("10.0.0.1", now) {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("10.0.0.1", now) {
		t.Error("third request in the same instant should be rejected")
	}
	if !l.Allow("10.0.0.2", now) {
		t.Error("other clients have their own bucket")
	}
	if !l.Allow("10.0.0.1", now.Add(time.Second)) {
		t.Error("bucket should refill after one second")
	}
}

func TestClientLimiter_Disabled(t *testing.T) {
	if l := NewClientLimiter(0, 10, 0); l != nil {
		t.Fatal("zero rate should disable the limiter")
	}
	var l *ClientLimiter
	if !l.Allow("anyone", time.Now()) {
		t.Error("nil limiter must allow")
	}
	if l.Len() != 0 {
		t.Error("nil limiter has no clients")
	}
}

func TestClientLimiter_EvictsIdle(t *testing.T) {
	l := NewClientLimiter(1000, 1000, time.Minute)
	start := time.Unix(1700000000, 0)
	l.Allow("idle", start)

	later := start.Add(2 * time.Minute)
	for i := 0; i < 511; i++ {
		l.Allow("busy", later)
	}
	if l.Len() != 1 {
		t.Errorf("clients = %d, want 1 after eviction", l.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewClientLimiter(1, 1, time.Minute)
	h := RateLimitMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.RemoteAddr = "192.0.2.7:51234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}

	req.RemoteAddr = "192.0.2.7:51999"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestClientHost(t *testing.T) {
	tests := map[string]string{
		"192.0.2.7:80": "192.0.2.7",
		"[::1]:8080":   "::1",
		"unix-socket":  "unix-socket",
	}
	for in, want := range tests {
		if got := clientHost(in); got != want {
			t.Errorf("clientHost(%q) = %q, want %q", in, got, want)
		}
	}
}
