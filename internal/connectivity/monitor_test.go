package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type reports struct {
	mu  sync.Mutex
	got []bool
}

func (r *reports) add(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, online)
}

func (r *reports) list() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

func TestCheck_ReportsTransitionsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	var r reports
	m := New(srv.URL, r.add, WithHTTPClient(&http.Client{Timeout: time.Second}))
	ctx := context.Background()

	if !m.Check(ctx) {
		t.Fatal("first check should be online")
	}
	m.Check(ctx)

	srv.Close()
	if m.Check(ctx) {
		t.Fatal("check against a closed server should be offline")
	}
	m.Check(ctx)

	got := r.list()
	want := []bool{true, false}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("reports = %v, want %v", got, want)
	}
}

func TestCheck_ServerErrorIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New(srv.URL, nil)
	if !m.Check(context.Background()) {
		t.Error("an HTTP error response still means the network is reachable")
	}
}

func TestRun_Disabled(t *testing.T) {
	var r reports
	m := New("", r.add)
	if m.Enabled() {
		t.Fatal("monitor without probe URL should be disabled")
	}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled monitor should return immediately")
	}
	if len(r.list()) != 0 {
		t.Error("disabled monitor reported")
	}
}

func TestRun_ProbesUntilCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var r reports
	m := New(srv.URL, r.add, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	got := r.list()
	if len(got) != 1 || !got[0] {
		t.Errorf("reports = %v, want a single online report", got)
	}
}
