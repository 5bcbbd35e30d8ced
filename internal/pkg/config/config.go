package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "launchgate.yaml"

// EnvPrefix prefixes environment overrides; "__" separates levels, e.g.
// LAUNCHGATE_SERVER__PORT=9090.
const EnvPrefix = "LAUNCHGATE_"

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Remote       RemoteConfig       `koanf:"remote"`
	Session      SessionConfig      `koanf:"session"`
	Device       DeviceConfig       `koanf:"device"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Worker       WorkerConfig       `koanf:"worker"`
}

type ServerConfig struct {
	Port           int             `koanf:"port"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket for the control API.
// A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type StorageConfig struct {
	Type      string       `koanf:"type"` // sqlite, memory
	SQLite    SQLiteConfig `koanf:"sqlite"`
	Namespace string       `koanf:"namespace"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// RemoteConfig describes the backing service, the attribution API and the
// destination endpoint.
type RemoteConfig struct {
	ValidationURL      string          `koanf:"validation_url"`
	AttributionBaseURL string          `koanf:"attribution_base_url"`
	AppID              string          `koanf:"app_id"`
	DevKey             string          `koanf:"dev_key"` // supports ${VAR}
	DestinationURL     string          `koanf:"destination_url"`
	UserAgent          string          `koanf:"user_agent"`
	Platform           string          `koanf:"platform"`
	BundleID           string          `koanf:"bundle_id"`
	ProjectID          string          `koanf:"project_id"`
	RetryDelays        []time.Duration `koanf:"retry_delays"`
	// DenyPrivateNetworks refuses remote calls that resolve to loopback,
	// private or link-local addresses.
	DenyPrivateNetworks bool `koanf:"deny_private_networks"`
}

type SessionConfig struct {
	LaunchTimeout    time.Duration `koanf:"launch_timeout"`
	OrganicDelay     time.Duration `koanf:"organic_delay"`
	Debounce         time.Duration `koanf:"debounce"`
	NavigationPrefix string        `koanf:"navigation_prefix"`
}

// DeviceConfig is the static device profile used when the host does not
// supply one.
type DeviceConfig struct {
	AttributionID string `koanf:"attribution_id"`
	Locale        string `koanf:"locale"`
	PushToken     string `koanf:"push_token"`
}

type ConnectivityConfig struct {
	ProbeURL string        `koanf:"probe_url"` // empty disables the monitor
	Interval time.Duration `koanf:"interval"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	PrettyPrint bool   `koanf:"pretty_print"`
	ServiceName string `koanf:"service_name"`
}

type WorkerConfig struct {
	PoolSize int `koanf:"pool_size"`
}

var defaults = map[string]any{
	"server.port":                           8080,
	"server.request_timeout":                "60s",
	"server.rate_limit.requests_per_second": 20.0,
	"server.rate_limit.burst":               40,
	"storage.type":                          "sqlite",
	"storage.sqlite.path":                   "launchgate.db",
	"storage.namespace":                     "lg_",
	"remote.attribution_base_url":           "https://gcdsdk.appsflyer.com",
	"remote.platform":                       "iOS",
	"session.launch_timeout":                "30s",
	"session.organic_delay":                 "5s",
	"session.debounce":                      "2500ms",
	"session.navigation_prefix":             "deep_",
	"connectivity.interval":                 "10s",
	"telemetry.service_name":                "launchgate",
	"worker.pool_size":                      16,
}

// DefaultRetryDelays is the destination retry schedule.
var DefaultRetryDelays = []time.Duration{11 * time.Second, 22 * time.Second, 44 * time.Second}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then LAUNCHGATE_ environment
// variables, applies defaults and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := decode(k)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration built from defaults alone, without
// reading any file or environment variable.
func Default() *Config {
	cfg, err := decode(koanf.New("."))
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func decode(k *koanf.Koanf) (*Config, error) {
	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("failed to apply default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Remote.RetryDelays) == 0 {
		cfg.Remote.RetryDelays = append([]time.Duration(nil), DefaultRetryDelays...)
	}
	cfg.Remote.DevKey = substituteEnvVars(cfg.Remote.DevKey)
	return &cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required for sqlite storage"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not one of sqlite, memory", c.Storage.Type))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	for name, raw := range map[string]string{
		"remote.validation_url":       c.Remote.ValidationURL,
		"remote.attribution_base_url": c.Remote.AttributionBaseURL,
		"remote.destination_url":      c.Remote.DestinationURL,
		"connectivity.probe_url":      c.Connectivity.ProbeURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
		}
	}

	if c.Session.LaunchTimeout <= 0 {
		errs = append(errs, errors.New("session.launch_timeout must be positive"))
	}
	if c.Session.OrganicDelay < 0 {
		errs = append(errs, errors.New("session.organic_delay must not be negative"))
	}
	if c.Session.Debounce <= 0 {
		errs = append(errs, errors.New("session.debounce must be positive"))
	}
	for i, d := range c.Remote.RetryDelays {
		if d < 0 {
			errs = append(errs, fmt.Errorf("remote.retry_delays[%d] must not be negative", i))
		}
	}

	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
