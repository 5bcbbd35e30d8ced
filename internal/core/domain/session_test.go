package domain

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestPermissionState_CanAsk(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		ts := now.Add(-time.Duration(d) * 24 * time.Hour)
		return &ts
	}

	tests := []struct {
		name  string
		state PermissionState
		want  bool
	}{
		{"never asked", PermissionState{}, true},
		{"declined long ago", PermissionState{Declined: true, LastAsked: daysAgo(400)}, false},
		{"declined without stamp", PermissionState{Declined: true}, false},
		{"approved", PermissionState{Approved: true, LastAsked: daysAgo(10)}, false},
		{"asked two days ago", PermissionState{LastAsked: daysAgo(2)}, false},
		{"asked three days ago", PermissionState{LastAsked: daysAgo(3)}, true},
		{"asked a week ago", PermissionState{LastAsked: daysAgo(7)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.CanAsk(now); got != tt.want {
				t.Errorf("CanAsk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	if got := Ready("https://example.com").String(); got != "ready(https://example.com)" {
		t.Errorf("unexpected ready phase string: %q", got)
	}
	if got := (Phase{Kind: PhaseFailed}).String(); got != "failed" {
		t.Errorf("unexpected failed phase string: %q", got)
	}
	if got := PhaseKind(42).String(); got != "unknown" {
		t.Errorf("unexpected out-of-range phase string: %q", got)
	}

	b, err := json.Marshal(map[string]Phase{"phase": {Kind: PhaseValidating}})
	if err != nil {
		t.Fatalf("marshal phase: %v", err)
	}
	if string(b) != `{"phase":"validating"}` {
		t.Errorf("unexpected phase JSON: %s", b)
	}
}

func TestIsFailure(t *testing.T) {
	failures := []Event{TimedOut{}, ValidationFailed{}, AttributionFetchFailed{}, DestinationFetchFailed{}}
	for _, e := range failures {
		if !IsFailure(e) {
			t.Errorf("expected %s to be a failure", e.Kind())
		}
	}
	if IsFailure(DestinationFetchSucceeded{URL: "https://x"}) {
		t.Error("success event reported as failure")
	}
}

func TestParseQuery(t *testing.T) {
	for _, q := range Queries {
		got, err := ParseQuery(string(q))
		if err != nil || got != q {
			t.Errorf("ParseQuery(%q) = %q, %v", q, got, err)
		}
	}
	if _, err := ParseQuery("bogus"); err == nil {
		t.Error("expected error for unknown query")
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Command
		wantErr bool
	}{
		{name: "initialize", want: Initialize{}},
		{name: "fetch_destination", raw: `{"ignored":true}`, want: FetchDestination{}},
		{name: "ingest_tracking", raw: `{"data":{"af_status":"Organic"}}`, want: IngestTracking{Data: map[string]string{"af_status": "Organic"}}},
		{name: "persist_endpoint", raw: `{"url":"https://example.com"}`, want: PersistEndpoint{URL: "https://example.com"}},
		{name: "report_connectivity", raw: `{"online":false}`, want: ReportConnectivity{Online: false}},
		{name: "persist_mode", wantErr: true},
		{name: "persist_mode", raw: `{"mode":`, wantErr: true},
		{name: "launch_rockets", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand(tt.name, json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %#v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeCommand() = %#v, want %#v", got, tt.want)
			}
			if got.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.name)
			}
		})
	}
}

func TestCommandNames_RoundTrip(t *testing.T) {
	names := CommandNames()
	if len(names) != 20 {
		t.Fatalf("expected 20 command names, got %d", len(names))
	}
	for _, name := range names {
		if _, ok := commandDecoders[name]; !ok {
			t.Errorf("missing decoder for %q", name)
		}
	}
}

func TestDecodeCommand_PersistPermissions(t *testing.T) {
	cmd, err := DecodeCommand("persist_permissions", json.RawMessage(`{"state":{"approved":true,"last_asked":"2026-01-02T03:04:05Z"}}`))
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	pp, ok := cmd.(PersistPermissions)
	if !ok {
		t.Fatalf("expected PersistPermissions, got %T", cmd)
	}
	if !pp.State.Approved || pp.State.LastAsked == nil {
		t.Fatalf("unexpected state: %+v", pp.State)
	}
	if !pp.State.LastAsked.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected stamp: %v", pp.State.LastAsked)
	}
}
