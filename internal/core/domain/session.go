package domain

import "time"

// PhaseKind is the stage of the launch decision.
type PhaseKind int

const (
	PhaseIdle PhaseKind = iota
	PhaseInitializing
	PhaseValidating
	PhaseValidated
	PhaseFetching
	PhaseReady
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:         "idle",
	PhaseInitializing: "initializing",
	PhaseValidating:   "validating",
	PhaseValidated:    "validated",
	PhaseFetching:     "fetching",
	PhaseReady:        "ready",
	PhaseFailed:       "failed",
}

func (k PhaseKind) String() string {
	if k < 0 || int(k) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[k]
}

// Phase is the current decision state. URL is only set when Kind is PhaseReady.
// Connectivity is tracked separately and never changes the phase.
type Phase struct {
	Kind PhaseKind
	URL  string
}

// Ready builds the terminal success phase.
func Ready(url string) Phase {
	return Phase{Kind: PhaseReady, URL: url}
}

func (p Phase) String() string {
	if p.Kind == PhaseReady {
		return "ready(" + p.URL + ")"
	}
	return p.Kind.String()
}

// MarshalText renders the phase kind for JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.Kind.String()), nil
}

// PermissionCooldown is the minimum wait between two notification prompts.
const PermissionCooldown = 72 * time.Hour

// PermissionState is the persisted notification permission outcome.
type PermissionState struct {
	Approved  bool       `json:"approved"`
	Declined  bool       `json:"declined"`
	LastAsked *time.Time `json:"last_asked,omitempty"`
}

// CanAsk reports whether the user may be prompted at now. Once approved or
// declined the user is never asked again; otherwise the cool-down applies.
func (s PermissionState) CanAsk(now time.Time) bool {
	if s.Approved || s.Declined {
		return false
	}
	if s.LastAsked == nil {
		return true
	}
	return now.Sub(*s.LastAsked) >= PermissionCooldown
}

// RestoredConfig is the snapshot loaded from storage at startup.
type RestoredConfig struct {
	Tracking    map[string]string
	Navigation  map[string]string
	Mode        string
	FirstLaunch bool
	Permissions PermissionState
}

// ModeActive is persisted once a destination has been resolved.
const ModeActive = "Active"

// OrganicStatusKey and OrganicStatus identify organic installs in tracking data.
const (
	OrganicStatusKey = "af_status"
	OrganicStatus    = "Organic"
)
