// Package ports defines the boundaries between the orchestration core and its
// collaborators: storage, the remote service, the host platform and event
// delivery.
package ports

import (
	"context"

	"github.com/tjfontaine/launchgate/internal/core/domain"
)

// KeyValueStore persists string values under string keys.
// Implementations: SQLite (default), in-memory.
type KeyValueStore interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Vault is the typed persistence gateway over a KeyValueStore.
type Vault interface {
	LoadConfig(ctx context.Context) (domain.RestoredConfig, error)
	SaveTracking(ctx context.Context, data map[string]string) error
	SaveNavigation(ctx context.Context, data map[string]string) error
	SaveEndpoint(ctx context.Context, url string) error
	SaveMode(ctx context.Context, mode string) error
	SavePermissions(ctx context.Context, state domain.PermissionState) error
	MarkLaunched(ctx context.Context) error
}

// RemoteService performs the three outbound network calls of a session.
type RemoteService interface {
	// Validate reports whether the backing service is reachable and configured.
	Validate(ctx context.Context) (bool, error)
	// FetchAttribution fetches install attribution data for a device.
	FetchAttribution(ctx context.Context, deviceID string) (map[string]string, error)
	// ResolveDestination resolves the destination URL for the tracking record.
	ResolveDestination(ctx context.Context, tracking map[string]string) (string, error)
}

// EventPublisher publishes domain events.
// Implementations: direct synchronous bus (default).
type EventPublisher interface {
	Publish(event domain.Event)
}

// PermissionPrompter shows the host's notification permission prompt.
type PermissionPrompter interface {
	RequestAuthorization(ctx context.Context) (granted bool, err error)
}

// PushRegistrar registers the device for push delivery after approval.
type PushRegistrar interface {
	Register(ctx context.Context) error
}

// DeviceProfile describes the device the session runs on.
type DeviceProfile interface {
	// AttributionID is the attribution SDK's identifier for this install.
	AttributionID() string
	// PushToken is the current push registration token, if any.
	PushToken(ctx context.Context) string
	// Locale is the preferred locale, e.g. "en_US".
	Locale() string
}

// LaunchState answers whether this install already completed a launch.
type LaunchState interface {
	HasLaunched() bool
}
