package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Command is an intention sent to the command handler. Commands are immutable
// and consumed exactly once.
type Command interface {
	// Name returns the stable wire name of the command.
	Name() string
	isCommand()
}

// Lifecycle

type Initialize struct{}
type Shutdown struct{}

// Data ingestion

// IngestTracking carries the merged attribution payload. It is the primary
// driver of the workflow: ingesting tracking starts validation.
type IngestTracking struct {
	Data map[string]string `json:"data"`
}

// IngestNavigation carries a deep-link payload.
type IngestNavigation struct {
	Data map[string]string `json:"data"`
}

// Operations

type PerformValidation struct{}
type FetchAttribution struct{}
type FetchDestination struct{}

// Permissions

type RequestNotificationPermission struct{}
type ApproveNotifications struct{}
type DeclineNotifications struct{}
type DeferNotifications struct{}

// Navigation

type TransitionToMain struct{}
type TransitionToWeb struct{}

// Storage pass-through

type PersistTracking struct {
	Data map[string]string `json:"data"`
}

type PersistNavigation struct {
	Data map[string]string `json:"data"`
}

type PersistEndpoint struct {
	URL string `json:"url"`
}

type PersistMode struct {
	Mode string `json:"mode"`
}

type PersistPermissions struct {
	State PermissionState `json:"state"`
}

type MarkLaunched struct{}

// Connectivity

// ReportConnectivity is sent by the reachability observer on every change.
type ReportConnectivity struct {
	Online bool `json:"online"`
}

func (Initialize) Name() string                    { return "initialize" }
func (Shutdown) Name() string                      { return "shutdown" }
func (IngestTracking) Name() string                { return "ingest_tracking" }
func (IngestNavigation) Name() string              { return "ingest_navigation" }
func (PerformValidation) Name() string             { return "perform_validation" }
func (FetchAttribution) Name() string              { return "fetch_attribution" }
func (FetchDestination) Name() string              { return "fetch_destination" }
func (RequestNotificationPermission) Name() string { return "request_notification_permission" }
func (ApproveNotifications) Name() string          { return "approve_notifications" }
func (DeclineNotifications) Name() string          { return "decline_notifications" }
func (DeferNotifications) Name() string            { return "defer_notifications" }
func (TransitionToMain) Name() string              { return "transition_to_main" }
func (TransitionToWeb) Name() string               { return "transition_to_web" }
func (PersistTracking) Name() string               { return "persist_tracking" }
func (PersistNavigation) Name() string             { return "persist_navigation" }
func (PersistEndpoint) Name() string               { return "persist_endpoint" }
func (PersistMode) Name() string                   { return "persist_mode" }
func (PersistPermissions) Name() string            { return "persist_permissions" }
func (MarkLaunched) Name() string                  { return "mark_launched" }
func (ReportConnectivity) Name() string            { return "report_connectivity" }

func (Initialize) isCommand()                    {}
func (Shutdown) isCommand()                      {}
func (IngestTracking) isCommand()                {}
func (IngestNavigation) isCommand()              {}
func (PerformValidation) isCommand()             {}
func (FetchAttribution) isCommand()              {}
func (FetchDestination) isCommand()              {}
func (RequestNotificationPermission) isCommand() {}
func (ApproveNotifications) isCommand()          {}
func (DeclineNotifications) isCommand()          {}
func (DeferNotifications) isCommand()            {}
func (TransitionToMain) isCommand()              {}
func (TransitionToWeb) isCommand()               {}
func (PersistTracking) isCommand()               {}
func (PersistNavigation) isCommand()             {}
func (PersistEndpoint) isCommand()               {}
func (PersistMode) isCommand()                   {}
func (PersistPermissions) isCommand()            {}
func (MarkLaunched) isCommand()                  {}
func (ReportConnectivity) isCommand()            {}

// commandDecoders maps wire names to payload decoders. Payload-free commands
// ignore the body.
var commandDecoders = map[string]func(json.RawMessage) (Command, error){
	"initialize":                      constant(Initialize{}),
	"shutdown":                        constant(Shutdown{}),
	"perform_validation":              constant(PerformValidation{}),
	"fetch_attribution":               constant(FetchAttribution{}),
	"fetch_destination":               constant(FetchDestination{}),
	"request_notification_permission": constant(RequestNotificationPermission{}),
	"approve_notifications":           constant(ApproveNotifications{}),
	"decline_notifications":           constant(DeclineNotifications{}),
	"defer_notifications":             constant(DeferNotifications{}),
	"transition_to_main":              constant(TransitionToMain{}),
	"transition_to_web":               constant(TransitionToWeb{}),
	"mark_launched":                   constant(MarkLaunched{}),
	"ingest_tracking":                 payload[IngestTracking](),
	"ingest_navigation":               payload[IngestNavigation](),
	"persist_tracking":                payload[PersistTracking](),
	"persist_navigation":              payload[PersistNavigation](),
	"persist_endpoint":                payload[PersistEndpoint](),
	"persist_mode":                    payload[PersistMode](),
	"persist_permissions":             payload[PersistPermissions](),
	"report_connectivity":             payload[ReportConnectivity](),
}

func constant(c Command) func(json.RawMessage) (Command, error) {
	return func(json.RawMessage) (Command, error) { return c, nil }
}

func payload[T Command]() func(json.RawMessage) (Command, error) {
	return func(raw json.RawMessage) (Command, error) {
		var c T
		if len(raw) == 0 {
			return nil, fmt.Errorf("command %s requires a payload", c.Name())
		}
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", c.Name(), err)
		}
		return c, nil
	}
}

// DecodeCommand builds a command from its wire name and JSON payload.
func DecodeCommand(name string, raw json.RawMessage) (Command, error) {
	decode, ok := commandDecoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return decode(raw)
}

// CommandNames lists every wire name accepted by DecodeCommand.
func CommandNames() []string {
	names := make([]string, 0, len(commandDecoders))
	for name := range commandDecoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
