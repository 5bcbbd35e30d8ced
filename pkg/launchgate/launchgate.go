// Package launchgate provides the public API for embedding a launch session.
// This is the stable API for external consumers.
package launchgate

import (
	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/pkg/config"
	"github.com/tjfontaine/launchgate/internal/readmodel"
	"github.com/tjfontaine/launchgate/internal/runtime"
)

// Engine runs one launch session.
// See internal/runtime.Engine for full documentation.
type Engine = runtime.Engine

// Option is a functional option for configuring an Engine.
type Option = runtime.Option

// Config is the engine configuration.
type Config = config.Config

// Presentation state.
type (
	Flags    = readmodel.Flags
	Snapshot = readmodel.Snapshot
	Phase    = domain.Phase
)

// Host collaborators.
type (
	PermissionPrompter = ports.PermissionPrompter
	PushRegistrar      = ports.PushRegistrar
	DeviceProfile      = ports.DeviceProfile
	RemoteService      = ports.RemoteService
	KeyValueStore      = ports.KeyValueStore
)

// Commands, events and queries.
type (
	Command = domain.Command
	Event   = domain.Event
	Query   = domain.Query
)

// New creates a new Engine with the given options.
// Example:
//
//	engine, err := launchgate.New(
//	    launchgate.WithConfig(cfg),
//	    launchgate.WithSQLite("./data/launchgate.db"),
//	    launchgate.WithPrompter(prompter),
//	)
var New = runtime.New

// Configuration
var (
	LoadConfig    = config.Load
	DefaultConfig = config.Default
)

// Configuration options
var (
	WithConfig = runtime.WithConfig
	WithLogger = runtime.WithLogger

	// Storage
	WithSQLite      = runtime.WithSQLite
	WithMemoryStore = runtime.WithMemoryStore
	WithStore       = runtime.WithStore

	// Remote service
	WithRemoteService = runtime.WithRemoteService
	WithHTTPClient    = runtime.WithHTTPClient

	// Host collaborators
	WithPrompter  = runtime.WithPrompter
	WithRegistrar = runtime.WithRegistrar
	WithDevice    = runtime.WithDevice

	// Observability
	WithMetrics = runtime.WithMetrics
)

// Command and query decoding by wire name.
var (
	DecodeCommand = domain.DecodeCommand
	ParseQuery    = domain.ParseQuery
)
