package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a ToolMesh service.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// The configuration automatically detects the execution environment
// (Kubernetes vs local) and adjusts defaults accordingly.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("weather-tools"),
//	    WithPort(8080),
//	    WithCORS([]string{"https://example.com"}, true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name      string `json:"name" yaml:"name" env:"TOOLMESH_SERVICE_NAME"`
	ID        string `json:"id" yaml:"id" env:"TOOLMESH_SERVICE_ID"`
	Port      int    `json:"port" yaml:"port" env:"TOOLMESH_PORT" default:"8080"`
	Address   string `json:"address" yaml:"address" env:"TOOLMESH_ADDRESS"`
	Namespace string `json:"namespace" yaml:"namespace" env:"TOOLMESH_NAMESPACE" default:"default"`

	// HTTP Server configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Directory (service announcement) configuration
	Directory DirectoryConfig `json:"directory" yaml:"directory"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Memory configuration
	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Development configuration
	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// HTTPConfig contains HTTP server configuration including timeouts, limits,
// and CORS settings. All timeout values use time.Duration.
type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"TOOLMESH_HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"TOOLMESH_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"TOOLMESH_HTTP_IDLE_TIMEOUT" default:"120s"`
	MaxHeaderBytes    int           `json:"max_header_bytes" yaml:"max_header_bytes" env:"TOOLMESH_HTTP_MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"TOOLMESH_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	EnableHealthCheck bool          `json:"enable_health_check" yaml:"enable_health_check" env:"TOOLMESH_HTTP_HEALTH_CHECK" default:"true"`
	HealthCheckPath   string        `json:"health_check_path" yaml:"health_check_path" env:"TOOLMESH_HTTP_HEALTH_PATH" default:"/health"`
	CORS              CORSConfig    `json:"cors" yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing (CORS) configuration.
// Supports wildcard domains (e.g., *.example.com) and wildcard ports
// (e.g., http://localhost:*).
//
// Security note: Be cautious with AllowCredentials=true and ensure
// AllowedOrigins is properly restricted in production environments.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" env:"TOOLMESH_CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" env:"TOOLMESH_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" env:"TOOLMESH_CORS_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" env:"TOOLMESH_CORS_HEADERS" default:"Content-Type,Authorization"`
	ExposedHeaders   []string `json:"exposed_headers" yaml:"exposed_headers" env:"TOOLMESH_CORS_EXPOSED_HEADERS"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" env:"TOOLMESH_CORS_CREDENTIALS" default:"false"`
	MaxAge           int      `json:"max_age" yaml:"max_age" env:"TOOLMESH_CORS_MAX_AGE" default:"86400"`
}

// DirectoryConfig contains service announcement configuration.
// Currently supports Redis as the directory backend. When MockDirectory is
// enabled in Development mode, an in-memory directory is used instead.
type DirectoryConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled" env:"TOOLMESH_DIRECTORY_ENABLED" default:"false"`
	Provider          string        `json:"provider" yaml:"provider" env:"TOOLMESH_DIRECTORY_PROVIDER" default:"redis"`
	RedisURL          string        `json:"redis_url" yaml:"redis_url" env:"TOOLMESH_REDIS_URL,REDIS_URL"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" env:"TOOLMESH_DIRECTORY_HEARTBEAT" default:"10s"`
	TTL               time.Duration `json:"ttl" yaml:"ttl" env:"TOOLMESH_DIRECTORY_TTL" default:"30s"`
}

// TelemetryConfig contains observability configuration for metrics and
// distributed tracing. This is an optional module - telemetry is only
// initialized when Enabled=true. The endpoint should be the OTLP receiver
// address.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"TOOLMESH_TELEMETRY_ENABLED" default:"false"`
	Provider       string  `json:"provider" yaml:"provider" env:"TOOLMESH_TELEMETRY_PROVIDER" default:"otel"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"TOOLMESH_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" yaml:"service_name" env:"TOOLMESH_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled" env:"TOOLMESH_TELEMETRY_METRICS" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled" env:"TOOLMESH_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" env:"TOOLMESH_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" yaml:"insecure" env:"TOOLMESH_TELEMETRY_INSECURE" default:"true"`
}

// MemoryConfig contains state storage configuration.
// Supports in-memory storage (default) or Redis for distributed state.
// The MaxSize limit only applies to in-memory storage.
type MemoryConfig struct {
	Provider   string        `json:"provider" yaml:"provider" env:"TOOLMESH_MEMORY_PROVIDER" default:"inmemory"`
	RedisURL   string        `json:"redis_url" yaml:"redis_url" env:"TOOLMESH_MEMORY_REDIS_URL,REDIS_URL"`
	MaxSize    int           `json:"max_size" yaml:"max_size" env:"TOOLMESH_MEMORY_MAX_SIZE" default:"1000"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" env:"TOOLMESH_MEMORY_DEFAULT_TTL" default:"1h"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
// In Kubernetes environments, JSON format is recommended for log aggregation.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"TOOLMESH_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"TOOLMESH_LOG_FORMAT" default:"json"`
	TimeFormat string `json:"time_format" yaml:"time_format" env:"TOOLMESH_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
//
// WARNING: Never enable development mode in production!
type DevelopmentConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled" env:"TOOLMESH_DEV_MODE" default:"false"`
	MockDirectory bool `json:"mock_directory" yaml:"mock_directory" env:"TOOLMESH_MOCK_DIRECTORY" default:"false"`
	DebugLogging  bool `json:"debug_logging" yaml:"debug_logging" env:"TOOLMESH_DEBUG" default:"false"`
}

// Option is a functional option for configuring a service.
// Options are applied in order and can return an error if the configuration
// is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// The defaults are adjusted based on the detected environment:
//   - Kubernetes: 0.0.0.0 binding, JSON logging, directory enabled
//   - Local: localhost binding, text logging, development mode
func DefaultConfig() *Config {
	cfg := &Config{
		Name:      "toolmesh-service",
		Port:      8080,
		Namespace: "default",
		HTTP: HTTPConfig{
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
			ShutdownTimeout:   10 * time.Second,
			EnableHealthCheck: true,
			HealthCheckPath:   "/health",
			CORS: CORSConfig{
				Enabled:          false,
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
				MaxAge:           86400,
			},
		},
		Directory: DirectoryConfig{
			Enabled:           false, // Disabled by default for local development
			Provider:          "redis",
			HeartbeatInterval: 10 * time.Second,
			TTL:               30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Provider:       "otel",
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Memory: MemoryConfig{
			Provider:   "inmemory",
			MaxSize:    1000,
			DefaultTTL: 1 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			TimeFormat: time.RFC3339Nano,
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts configuration based on the detected environment.
// Called automatically by DefaultConfig().
//
// Detection criteria:
//   - Kubernetes: KUBERNETES_SERVICE_HOST environment variable is set
//   - Local: no Kubernetes environment variables detected
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Address = "0.0.0.0"      // Bind to all interfaces in K8s
		c.Directory.Enabled = true // Announce services in K8s
		c.Directory.RedisURL = "redis://redis.default.svc.cluster.local:6379"
		c.Logging.Format = "json" // Structured logs for K8s
	} else {
		c.Address = "localhost"
		c.Directory.RedisURL = "redis://localhost:6379"

		if os.Getenv("TOOLMESH_DEV_MODE") == "" {
			c.Development.Enabled = true
			c.Logging.Format = "text" // Human-readable logs
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden by
// functional options.
//
// Variable naming convention:
//   - Framework-specific: TOOLMESH_<SETTING>
//   - Standard variables: REDIS_URL, OTEL_EXPORTER_OTLP_ENDPOINT
func (c *Config) LoadFromEnv() error {
	// Core settings
	if v := os.Getenv("TOOLMESH_SERVICE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("TOOLMESH_SERVICE_ID"); v != "" {
		c.ID = v
	}
	if v := os.Getenv("TOOLMESH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("TOOLMESH_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("TOOLMESH_NAMESPACE"); v != "" {
		c.Namespace = v
	}

	// HTTP settings
	if v := os.Getenv("TOOLMESH_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("TOOLMESH_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}

	// CORS settings
	if v := os.Getenv("TOOLMESH_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOOLMESH_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}
	if v := os.Getenv("TOOLMESH_CORS_METHODS"); v != "" {
		c.HTTP.CORS.AllowedMethods = parseStringList(v)
	}
	if v := os.Getenv("TOOLMESH_CORS_HEADERS"); v != "" {
		c.HTTP.CORS.AllowedHeaders = parseStringList(v)
	}
	if v := os.Getenv("TOOLMESH_CORS_CREDENTIALS"); v != "" {
		c.HTTP.CORS.AllowCredentials = parseBool(v)
	}

	// Directory settings
	if v := os.Getenv("TOOLMESH_DIRECTORY_ENABLED"); v != "" {
		c.Directory.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOOLMESH_DIRECTORY_PROVIDER"); v != "" {
		c.Directory.Provider = v
	}
	if v := os.Getenv("TOOLMESH_REDIS_URL"); v != "" {
		c.Directory.RedisURL = v
		c.Memory.RedisURL = v // Also use for memory if not separately configured
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Directory.RedisURL = v
		c.Memory.RedisURL = v
	}
	if v := os.Getenv("TOOLMESH_DIRECTORY_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Directory.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("TOOLMESH_DIRECTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Directory.TTL = d
		}
	}

	// Telemetry settings
	if v := os.Getenv("TOOLMESH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOOLMESH_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("TOOLMESH_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name // Default to service name
	}

	// Memory settings
	if v := os.Getenv("TOOLMESH_MEMORY_PROVIDER"); v != "" {
		c.Memory.Provider = v
	}
	if v := os.Getenv("TOOLMESH_MEMORY_REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	}

	// Logging settings
	if v := os.Getenv("TOOLMESH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TOOLMESH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development settings
	if v := os.Getenv("TOOLMESH_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("TOOLMESH_MOCK_DIRECTORY"); v != "" {
		c.Development.MockDirectory = parseBool(v)
	}
	if v := os.Getenv("TOOLMESH_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	return nil
}

// NewConfig creates a configuration applying the three priority layers:
// defaults, then environment variables, then the supplied options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range: %w", c.Port, ErrInvalidConfiguration)
	}
	if c.Directory.Enabled && c.Directory.Provider == "redis" && c.Directory.RedisURL == "" && !c.Development.MockDirectory {
		return fmt.Errorf("directory enabled but no Redis URL configured: %w", ErrMissingConfiguration)
	}
	if c.Memory.Provider == "redis" && c.Memory.RedisURL == "" {
		return fmt.Errorf("redis memory provider requires a Redis URL: %w", ErrMissingConfiguration)
	}
	return nil
}

// Functional options

// WithName sets the service name
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP port (0 enables automatic assignment)
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("port %d out of range: %w", port, ErrInvalidConfiguration)
		}
		c.Port = port
		return nil
	}
}

// WithAddress sets the externally visible address
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

// WithNamespace sets the directory namespace
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithCORS enables CORS for the given origins
func WithCORS(origins []string, allowCredentials bool) Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = true
		c.HTTP.CORS.AllowedOrigins = origins
		c.HTTP.CORS.AllowCredentials = allowCredentials
		return nil
	}
}

// WithRedisURL sets the Redis URL for both directory and memory
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Directory.RedisURL = url
		c.Memory.RedisURL = url
		return nil
	}
}

// WithDirectory enables or disables service announcement
func WithDirectory(enabled bool) Option {
	return func(c *Config) error {
		c.Directory.Enabled = enabled
		return nil
	}
}

// WithTelemetryEndpoint enables telemetry against an OTLP endpoint
func WithTelemetryEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Endpoint = endpoint
		c.Telemetry.Enabled = true
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log format (json or text)
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		if format != "json" && format != "text" {
			return fmt.Errorf("unknown log format %q: %w", format, ErrInvalidConfiguration)
		}
		c.Logging.Format = format
		return nil
	}
}

// WithMemoryProvider sets the memory backend (inmemory or redis)
func WithMemoryProvider(provider string) Option {
	return func(c *Config) error {
		if provider != "inmemory" && provider != "redis" {
			return fmt.Errorf("unknown memory provider %q: %w", provider, ErrInvalidConfiguration)
		}
		c.Memory.Provider = provider
		return nil
	}
}

// WithDevelopmentMode enables development defaults
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		return nil
	}
}

// WithMockDirectory uses the in-memory directory instead of Redis
func WithMockDirectory(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockDirectory = enabled
		return nil
	}
}

// WithConfigFile loads YAML configuration from a file. Values from the file
// override whatever the config holds when the option is applied, and are in
// turn overridden by any options applied after it.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}
}

// parseBool interprets common truthy strings
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}

// parseStringList splits a comma-separated environment value
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
