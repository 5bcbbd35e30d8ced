// Package readmodel projects domain events into the session's current truth.
// The model has a single writer (the orchestrator's executor) and many readers.
package readmodel

import (
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/launchgate/internal/core/domain"
)

// Flags are the presentation signals raised by the projection.
type Flags struct {
	ShowPermissionPrompt bool `json:"show_permission_prompt"`
	ShowOffline          bool `json:"show_offline"`
	NavigateToMain       bool `json:"navigate_to_main"`
	NavigateToWeb        bool `json:"navigate_to_web"`
}

// Snapshot is a consistent copy of the whole model.
type Snapshot struct {
	Phase                 domain.Phase           `json:"phase"`
	Destination           string                 `json:"destination,omitempty"`
	Tracking              map[string]string      `json:"tracking"`
	Navigation            map[string]string      `json:"navigation"`
	Mode                  string                 `json:"mode,omitempty"`
	FirstLaunch           bool                   `json:"first_launch"`
	Permissions           domain.PermissionState `json:"permissions"`
	CanRequestPermissions bool                   `json:"can_request_permissions"`
	ShouldRunOrganicFlow  bool                   `json:"should_run_organic_flow"`
	Locked                bool                   `json:"locked"`
	Flags                 Flags                  `json:"flags"`
}

// Option configures a Model.
type Option func(*Model)

// WithClock sets the time source used for permission cool-downs.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// Model is the read side of the session.
type Model struct {
	mu  sync.RWMutex
	now func() time.Time

	phase       domain.Phase
	destination string
	tracking    map[string]string
	navigation  map[string]string
	mode        string
	firstLaunch bool
	permissions domain.PermissionState
	locked      bool
	flags       Flags
}

// New creates an idle model.
func New(opts ...Option) *Model {
	m := &Model{
		now:         time.Now,
		phase:       domain.Phase{Kind: domain.PhaseIdle},
		tracking:    map[string]string{},
		navigation:  map[string]string{},
		firstLaunch: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply advances the projection by one event. Unknown events are no-ops.
func (m *Model) Apply(event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked && changesPhase(event) {
		return
	}

	switch e := event.(type) {
	case domain.Started:
		m.phase = domain.Phase{Kind: domain.PhaseInitializing}

	case domain.TimedOut:
		m.fail()

	case domain.Locked:
		m.locked = true

	case domain.TrackingIngested:
		m.tracking = domain.CloneMap(e.Data)

	case domain.NavigationIngested:
		m.navigation = domain.CloneMap(e.Data)

	case domain.ConfigRestored:
		m.tracking = domain.CloneMap(e.Config.Tracking)
		m.navigation = domain.CloneMap(e.Config.Navigation)
		m.mode = e.Config.Mode
		m.firstLaunch = e.Config.FirstLaunch
		m.permissions = e.Config.Permissions

	case domain.ValidationStarted:
		m.phase = domain.Phase{Kind: domain.PhaseValidating}

	case domain.ValidationSucceeded:
		m.phase = domain.Phase{Kind: domain.PhaseValidated}

	case domain.AttributionFetchStarted, domain.DestinationFetchStarted:
		m.phase = domain.Phase{Kind: domain.PhaseFetching}

	case domain.AttributionFetchSucceeded:
		m.tracking = domain.CloneMap(e.Data)

	case domain.ValidationFailed, domain.AttributionFetchFailed, domain.DestinationFetchFailed:
		m.fail()

	case domain.DestinationFetchSucceeded:
		m.destination = e.URL
		m.mode = domain.ModeActive
		m.firstLaunch = false
		m.phase = domain.Ready(e.URL)
		m.locked = true
		if m.permissions.CanAsk(m.now()) {
			m.flags.ShowPermissionPrompt = true
		} else {
			m.flags.NavigateToWeb = true
		}

	case domain.PermissionApproved:
		at := e.At
		m.resolvePermission(domain.PermissionState{Approved: true, LastAsked: &at})

	case domain.PermissionDeclined:
		at := e.At
		m.resolvePermission(domain.PermissionState{Declined: true, LastAsked: &at})

	case domain.PermissionDeferred:
		m.resolvePermission(domain.PermissionState{LastAsked: e.At})

	case domain.ConnectionLost:
		if !m.locked {
			m.flags.ShowOffline = true
		}

	case domain.ConnectionEstablished:
		if !m.locked {
			m.flags.ShowOffline = false
		}
	}
}

// fail moves to Failed and raises the fallback navigation flag.
func (m *Model) fail() {
	m.phase = domain.Phase{Kind: domain.PhaseFailed}
	m.flags.NavigateToMain = true
}

func (m *Model) resolvePermission(state domain.PermissionState) {
	m.permissions = state
	m.flags.ShowPermissionPrompt = false
	m.flags.NavigateToWeb = true
}

// changesPhase reports whether event moves the phase or the destination.
// These are ignored once the session is locked.
func changesPhase(event domain.Event) bool {
	switch event.(type) {
	case domain.Started, domain.TimedOut,
		domain.ValidationStarted, domain.ValidationSucceeded, domain.ValidationFailed,
		domain.AttributionFetchStarted, domain.AttributionFetchFailed,
		domain.DestinationFetchStarted, domain.DestinationFetchSucceeded, domain.DestinationFetchFailed:
		return true
	}
	return false
}

// Phase returns the current phase.
func (m *Model) Phase() domain.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Destination returns the resolved destination, empty until locked.
func (m *Model) Destination() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destination
}

// Tracking returns a copy of the tracking map.
func (m *Model) Tracking() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.CloneMap(m.tracking)
}

// Navigation returns a copy of the navigation map.
func (m *Model) Navigation() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.CloneMap(m.navigation)
}

func (m *Model) Permissions() domain.PermissionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permissions
}

func (m *Model) CanRequestPermissions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permissions.CanAsk(m.now())
}

// ShouldRunOrganicFlow is true for an organic install on its first launch.
func (m *Model) ShouldRunOrganicFlow() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shouldRunOrganicFlow()
}

func (m *Model) shouldRunOrganicFlow() bool {
	return m.tracking[domain.OrganicStatusKey] == domain.OrganicStatus && m.firstLaunch
}

func (m *Model) IsLocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locked
}

func (m *Model) Mode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Model) FirstLaunch() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.firstLaunch
}

// HasLaunched reports whether a previous session completed a launch.
func (m *Model) HasLaunched() bool {
	return !m.FirstLaunch()
}

func (m *Model) Flags() Flags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// Query answers q by name.
func (m *Model) Query(q domain.Query) (any, error) {
	switch q {
	case domain.QueryCurrentPhase:
		return m.Phase(), nil
	case domain.QueryDestination:
		return m.Destination(), nil
	case domain.QueryTracking:
		return m.Tracking(), nil
	case domain.QueryNavigation:
		return m.Navigation(), nil
	case domain.QueryPermissions:
		return m.Permissions(), nil
	case domain.QueryCanRequestPermissions:
		return m.CanRequestPermissions(), nil
	case domain.QueryShouldRunOrganicFlow:
		return m.ShouldRunOrganicFlow(), nil
	case domain.QueryIsLocked:
		return m.IsLocked(), nil
	default:
		return nil, fmt.Errorf("unknown query %q", q)
	}
}

// Snapshot returns a consistent copy of the model.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		Phase:                 m.phase,
		Destination:           m.destination,
		Tracking:              domain.CloneMap(m.tracking),
		Navigation:            domain.CloneMap(m.navigation),
		Mode:                  m.mode,
		FirstLaunch:           m.firstLaunch,
		Permissions:           m.permissions,
		CanRequestPermissions: m.permissions.CanAsk(m.now()),
		ShouldRunOrganicFlow:  m.shouldRunOrganicFlow(),
		Locked:                m.locked,
		Flags:                 m.flags,
	}
}
