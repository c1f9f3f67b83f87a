// Package toolmesh is a lightweight meta-module that re-exports from
// submodules. This is the main entry point for the ToolMesh framework.
// Users should import specific modules based on their needs:
//   - github.com/toolmesh/toolmesh/core - Capability registry and invocation
//   - github.com/toolmesh/toolmesh/telemetry - OpenTelemetry observability
//   - github.com/toolmesh/toolmesh/resilience - Retries and circuit breaking
//   - github.com/toolmesh/toolmesh/langchain - langchaingo tool bridging
package toolmesh

import (
	"context"

	"github.com/toolmesh/toolmesh/core"
)

// Re-export core types
type (
	// Capability types
	Capability      = core.Capability
	Handler         = core.Handler
	Input           = core.Input
	Observation     = core.Observation
	Schema          = core.Schema
	FieldSpec       = core.FieldSpec
	ErrorPolicy     = core.ErrorPolicy
	RecoveryHandler = core.RecoveryHandler

	// Registry and invocation
	Registry           = core.Registry
	Invoker            = core.Invoker
	Service            = core.Service
	InvocationResponse = core.InvocationResponse

	// Failure protocol
	RecoverableError = core.RecoverableError
	ErrorCategory    = core.ErrorCategory
	FrameworkError   = core.FrameworkError

	// Configuration types
	Config            = core.Config
	Option            = core.Option
	HTTPConfig        = core.HTTPConfig
	CORSConfig        = core.CORSConfig
	DirectoryConfig   = core.DirectoryConfig
	TelemetryConfig   = core.TelemetryConfig
	MemoryConfig      = core.MemoryConfig
	LoggingConfig     = core.LoggingConfig
	DevelopmentConfig = core.DevelopmentConfig

	// Interfaces
	Logger    = core.Logger
	Memory    = core.Memory
	Telemetry = core.Telemetry
	Span      = core.Span
	Directory = core.Directory

	// Directory types
	ServiceInfo       = core.ServiceInfo
	CapabilitySummary = core.CapabilitySummary
	HealthStatus      = core.HealthStatus
)

// Re-export constants
const (
	HealthHealthy   = core.HealthHealthy
	HealthUnhealthy = core.HealthUnhealthy
	HealthUnknown   = core.HealthUnknown

	CategoryInputError   = core.CategoryInputError
	CategoryNotFound     = core.CategoryNotFound
	CategoryRateLimit    = core.CategoryRateLimit
	CategoryAuthError    = core.CategoryAuthError
	CategoryServiceError = core.CategoryServiceError
)

// Re-export core functions
var (
	NewService           = core.NewService
	NewServiceWithConfig = core.NewServiceWithConfig
	NewRegistry          = core.NewRegistry
	NewInvoker           = core.NewInvoker
	NewFramework         = core.NewFramework
	NewRedisDirectory    = core.NewRedisDirectory
	NewMockDirectory     = core.NewMockDirectory
	NewMemoryStore       = core.NewMemoryStore
	NewConfig            = core.NewConfig
	DefaultConfig        = core.DefaultConfig

	// Capability construction
	FromFunc           = core.FromFunc
	FromStructuredFunc = core.FromStructuredFunc
	SchemaFromStruct   = core.SchemaFromStruct
	WithDirectReturn   = core.WithDirectReturn
	WithErrorPolicy    = core.WithErrorPolicy
	WithEndpoint       = core.WithEndpoint
	WithDescription    = core.WithDescription

	// Error policies
	PropagateErrors = core.PropagateErrors
	FixedMessage    = core.FixedMessage
	HandleWith      = core.HandleWith

	// Failure protocol helpers
	Recoverable           = core.Recoverable
	AsRecoverable         = core.AsRecoverable
	HTTPStatusForCategory = core.HTTPStatusForCategory

	// Configuration options
	WithName              = core.WithName
	WithPort              = core.WithPort
	WithAddress           = core.WithAddress
	WithNamespace         = core.WithNamespace
	WithCORS              = core.WithCORS
	WithRedisURL          = core.WithRedisURL
	WithDirectory         = core.WithDirectory
	WithTelemetryEndpoint = core.WithTelemetryEndpoint
	WithLogLevel          = core.WithLogLevel
	WithLogFormat         = core.WithLogFormat
	WithMemoryProvider    = core.WithMemoryProvider
	WithDevelopmentMode   = core.WithDevelopmentMode
	WithMockDirectory     = core.WithMockDirectory
	WithConfigFile        = core.WithConfigFile
)

// RunService initializes a service and serves it on the given port
func RunService(svc *Service, port int) error {
	framework, err := core.NewFramework(svc, core.WithPort(port))
	if err != nil {
		return err
	}
	return framework.Run(context.Background())
}
