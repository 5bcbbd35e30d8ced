package domain

import "time"

// Event is a fact published by the command handler. Events are immutable and
// never retracted; the read model derives current truth from them.
type Event interface {
	Kind() EventKind
	isEvent()
}

// EventKind identifies the type of domain event.
type EventKind string

const (
	EventStarted  EventKind = "session.started"
	EventTimedOut EventKind = "session.timed_out"
	EventLocked   EventKind = "session.locked"

	EventTrackingIngested   EventKind = "data.tracking_ingested"
	EventNavigationIngested EventKind = "data.navigation_ingested"
	EventConfigRestored     EventKind = "data.config_restored"

	EventValidationStarted   EventKind = "validation.started"
	EventValidationSucceeded EventKind = "validation.succeeded"
	EventValidationFailed    EventKind = "validation.failed"

	EventAttributionFetchStarted   EventKind = "attribution.started"
	EventAttributionFetchSucceeded EventKind = "attribution.succeeded"
	EventAttributionFetchFailed    EventKind = "attribution.failed"

	EventDestinationFetchStarted   EventKind = "destination.started"
	EventDestinationFetchSucceeded EventKind = "destination.succeeded"
	EventDestinationFetchFailed    EventKind = "destination.failed"

	EventPermissionRequested EventKind = "permission.requested"
	EventPermissionApproved  EventKind = "permission.approved"
	EventPermissionDeclined  EventKind = "permission.declined"
	EventPermissionDeferred  EventKind = "permission.deferred"

	EventNavigatedToMain EventKind = "navigation.main"
	EventNavigatedToWeb  EventKind = "navigation.web"

	EventConnectionEstablished EventKind = "connectivity.established"
	EventConnectionLost        EventKind = "connectivity.lost"
)

// Lifecycle

type Started struct{}
type TimedOut struct{}
type Locked struct{}

// Data

// TrackingIngested carries the merged attribution record.
type TrackingIngested struct {
	Data map[string]string
}

// NavigationIngested carries a deep-link payload.
type NavigationIngested struct {
	Data map[string]string
}

// ConfigRestored carries the snapshot loaded at startup.
type ConfigRestored struct {
	Config RestoredConfig
}

// Validation

type ValidationStarted struct{}
type ValidationSucceeded struct{}

// ValidationFailed is published when the backing service check fails or errors.
type ValidationFailed struct {
	Reason string
}

// Attribution

type AttributionFetchStarted struct{}

// AttributionFetchSucceeded carries the fetched record merged with navigation keys.
type AttributionFetchSucceeded struct {
	Data map[string]string
}

type AttributionFetchFailed struct {
	Reason string
}

// Destination

type DestinationFetchStarted struct{}

// DestinationFetchSucceeded carries the resolved destination URL.
type DestinationFetchSucceeded struct {
	URL string
}

type DestinationFetchFailed struct {
	Reason string
}

// Permission

type PermissionRequested struct{}

// PermissionApproved, PermissionDeclined and PermissionDeferred carry the stamp
// chosen by the command handler. Deferred carries a nil stamp.
type PermissionApproved struct {
	At time.Time
}

type PermissionDeclined struct {
	At time.Time
}

type PermissionDeferred struct {
	At *time.Time
}

// Navigation acknowledgements from the presentation layer.

type NavigatedToMain struct{}
type NavigatedToWeb struct{}

// Connectivity

type ConnectionEstablished struct{}
type ConnectionLost struct{}

func (Started) Kind() EventKind                   { return EventStarted }
func (TimedOut) Kind() EventKind                  { return EventTimedOut }
func (Locked) Kind() EventKind                    { return EventLocked }
func (TrackingIngested) Kind() EventKind          { return EventTrackingIngested }
func (NavigationIngested) Kind() EventKind        { return EventNavigationIngested }
func (ConfigRestored) Kind() EventKind            { return EventConfigRestored }
func (ValidationStarted) Kind() EventKind         { return EventValidationStarted }
func (ValidationSucceeded) Kind() EventKind       { return EventValidationSucceeded }
func (ValidationFailed) Kind() EventKind          { return EventValidationFailed }
func (AttributionFetchStarted) Kind() EventKind   { return EventAttributionFetchStarted }
func (AttributionFetchSucceeded) Kind() EventKind { return EventAttributionFetchSucceeded }
func (AttributionFetchFailed) Kind() EventKind    { return EventAttributionFetchFailed }
func (DestinationFetchStarted) Kind() EventKind   { return EventDestinationFetchStarted }
func (DestinationFetchSucceeded) Kind() EventKind { return EventDestinationFetchSucceeded }
func (DestinationFetchFailed) Kind() EventKind    { return EventDestinationFetchFailed }
func (PermissionRequested) Kind() EventKind       { return EventPermissionRequested }
func (PermissionApproved) Kind() EventKind        { return EventPermissionApproved }
func (PermissionDeclined) Kind() EventKind        { return EventPermissionDeclined }
func (PermissionDeferred) Kind() EventKind        { return EventPermissionDeferred }
func (NavigatedToMain) Kind() EventKind           { return EventNavigatedToMain }
func (NavigatedToWeb) Kind() EventKind            { return EventNavigatedToWeb }
func (ConnectionEstablished) Kind() EventKind     { return EventConnectionEstablished }
func (ConnectionLost) Kind() EventKind            { return EventConnectionLost }

func (Started) isEvent()                   {}
func (TimedOut) isEvent()                  {}
func (Locked) isEvent()                    {}
func (TrackingIngested) isEvent()          {}
func (NavigationIngested) isEvent()        {}
func (ConfigRestored) isEvent()            {}
func (ValidationStarted) isEvent()         {}
func (ValidationSucceeded) isEvent()       {}
func (ValidationFailed) isEvent()          {}
func (AttributionFetchStarted) isEvent()   {}
func (AttributionFetchSucceeded) isEvent() {}
func (AttributionFetchFailed) isEvent()    {}
func (DestinationFetchStarted) isEvent()   {}
func (DestinationFetchSucceeded) isEvent() {}
func (DestinationFetchFailed) isEvent()    {}
func (PermissionRequested) isEvent()       {}
func (PermissionApproved) isEvent()        {}
func (PermissionDeclined) isEvent()        {}
func (PermissionDeferred) isEvent()        {}
func (NavigatedToMain) isEvent()           {}
func (NavigatedToWeb) isEvent()            {}
func (ConnectionEstablished) isEvent()     {}
func (ConnectionLost) isEvent()            {}

// IsFailure reports whether the event routes the session to the fallback experience.
func IsFailure(e Event) bool {
	switch e.(type) {
	case TimedOut, ValidationFailed, AttributionFetchFailed, DestinationFetchFailed:
		return true
	}
	return false
}
