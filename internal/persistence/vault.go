// Package persistence maps the session snapshot onto namespaced key/value
// entries. The same keys are read by the destination renderer, so names and
// encodings are part of the external contract.
package persistence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
)

// DefaultNamespace prefixes every key written by the vault.
const DefaultNamespace = "lg_"

// Key names, relative to the namespace.
const (
	KeyTracking     = "tracking_data"
	KeyNavigation   = "navigation_data"
	KeyEndpoint     = "endpoint_url"
	KeyMode         = "mode_state"
	KeyLaunched     = "launched_flag"
	KeyPermApproved = "perm_approved"
	KeyPermDeclined = "perm_declined"
	KeyPermDate     = "perm_date"
	KeyPushToken    = "push_token"
)

// ErrorObserver is notified of every failed write, keyed by key name.
type ErrorObserver func(key string, err error)

// Vault implements ports.Vault over a KeyValueStore.
type Vault struct {
	store     ports.KeyValueStore
	namespace string
	logger    *slog.Logger
	onError   ErrorObserver
}

var _ ports.Vault = (*Vault)(nil)

// Option configures a Vault.
type Option func(*Vault)

// WithNamespace overrides the key prefix.
func WithNamespace(ns string) Option {
	return func(v *Vault) {
		v.namespace = ns
	}
}

// WithLogger sets the logger used for decode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithErrorObserver registers a callback for failed writes.
func WithErrorObserver(fn ErrorObserver) Option {
	return func(v *Vault) {
		v.onError = fn
	}
}

// New creates a vault over store.
func New(store ports.KeyValueStore, opts ...Option) *Vault {
	v := &Vault{
		store:     store,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Key returns the fully qualified storage key for name.
func (v *Vault) Key(name string) string {
	return v.namespace + name
}

// LoadConfig restores the snapshot. Corrupt values are logged and replaced by
// defaults; only store failures are returned.
func (v *Vault) LoadConfig(ctx context.Context) (domain.RestoredConfig, error) {
	cfg := domain.RestoredConfig{
		Tracking:    map[string]string{},
		Navigation:  map[string]string{},
		FirstLaunch: true,
	}

	if raw, ok, err := v.get(ctx, KeyTracking); err != nil {
		return cfg, err
	} else if ok {
		if m, err := decodeMap(raw); err != nil {
			v.warn(KeyTracking, err)
		} else {
			cfg.Tracking = m
		}
	}

	if raw, ok, err := v.get(ctx, KeyNavigation); err != nil {
		return cfg, err
	} else if ok {
		if m, err := decodeObfuscatedMap(raw); err != nil {
			v.warn(KeyNavigation, err)
		} else {
			cfg.Navigation = m
		}
	}

	mode, _, err := v.get(ctx, KeyMode)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode

	launched, err := v.getBool(ctx, KeyLaunched)
	if err != nil {
		return cfg, err
	}
	cfg.FirstLaunch = !launched

	if cfg.Permissions.Approved, err = v.getBool(ctx, KeyPermApproved); err != nil {
		return cfg, err
	}
	if cfg.Permissions.Declined, err = v.getBool(ctx, KeyPermDeclined); err != nil {
		return cfg, err
	}

	if raw, ok, err := v.get(ctx, KeyPermDate); err != nil {
		return cfg, err
	} else if ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		switch {
		case err != nil:
			v.warn(KeyPermDate, err)
		case ms > 0:
			ts := time.UnixMilli(ms)
			cfg.Permissions.LastAsked = &ts
		}
	}

	return cfg, nil
}

// SaveTracking stores the tracking map as compact JSON.
func (v *Vault) SaveTracking(ctx context.Context, data map[string]string) error {
	raw, err := encodeMap(data)
	if err != nil {
		return v.fail(KeyTracking, err)
	}
	return v.set(ctx, KeyTracking, raw)
}

// SaveNavigation stores the navigation map as obfuscated JSON.
func (v *Vault) SaveNavigation(ctx context.Context, data map[string]string) error {
	raw, err := encodeMap(data)
	if err != nil {
		return v.fail(KeyNavigation, err)
	}
	return v.set(ctx, KeyNavigation, obfuscate(raw))
}

func (v *Vault) SaveEndpoint(ctx context.Context, url string) error {
	return v.set(ctx, KeyEndpoint, url)
}

func (v *Vault) SaveMode(ctx context.Context, mode string) error {
	return v.set(ctx, KeyMode, mode)
}

// SavePermissions stores the permission flags. The date is only written when
// the state carries one, so a deferral keeps the previous stamp.
func (v *Vault) SavePermissions(ctx context.Context, state domain.PermissionState) error {
	if err := v.set(ctx, KeyPermApproved, strconv.FormatBool(state.Approved)); err != nil {
		return err
	}
	if err := v.set(ctx, KeyPermDeclined, strconv.FormatBool(state.Declined)); err != nil {
		return err
	}
	if state.LastAsked != nil {
		return v.set(ctx, KeyPermDate, strconv.FormatInt(state.LastAsked.UnixMilli(), 10))
	}
	return nil
}

func (v *Vault) MarkLaunched(ctx context.Context) error {
	return v.set(ctx, KeyLaunched, "true")
}

// SavePushToken stores the push registration token sent with destination requests.
func (v *Vault) SavePushToken(ctx context.Context, token string) error {
	return v.set(ctx, KeyPushToken, token)
}

// PushToken returns the stored push token, or "" when none was registered.
func (v *Vault) PushToken(ctx context.Context) (string, error) {
	token, _, err := v.get(ctx, KeyPushToken)
	return token, err
}

func (v *Vault) get(ctx context.Context, name string) (string, bool, error) {
	val, ok, err := v.store.Get(ctx, v.Key(name))
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", name, err)
	}
	return val, ok, nil
}

func (v *Vault) getBool(ctx context.Context, name string) (bool, error) {
	raw, ok, err := v.get(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.warn(name, err)
		return false, nil
	}
	return b, nil
}

func (v *Vault) set(ctx context.Context, name, value string) error {
	if err := v.store.Set(ctx, v.Key(name), value); err != nil {
		return v.fail(name, err)
	}
	return nil
}

func (v *Vault) fail(name string, err error) error {
	if v.onError != nil {
		v.onError(name, err)
	}
	return fmt.Errorf("save %s: %w", name, err)
}

func (v *Vault) warn(name string, err error) {
	v.logger.Warn("discarding unreadable persisted value",
		slog.String("key", v.Key(name)),
		slog.String("error", err.Error()))
}

func encodeMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(raw string) (map[string]string, error) {
	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("decode JSON map: %w", err)
	}
	return domain.NormalizePayload(loose), nil
}

func decodeObfuscatedMap(raw string) (map[string]string, error) {
	plain, err := reveal(raw)
	if err != nil {
		return nil, err
	}
	return decodeMap(plain)
}

// obfuscate keeps the value opaque at rest; it is an encoding, not encryption.
func obfuscate(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func reveal(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode obfuscated value: %w", err)
	}
	return string(b), nil
}
