package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
)

// Service hosts a capability registry over HTTP. It owns the dispatch table,
// the invoker that applies error translation, and the optional directory
// announcement that makes the service discoverable by other components.
//
// Services are passive: they respond to invocation requests and never call
// out to other services themselves.
type Service struct {
	ID   string
	Name string

	Registry *Registry
	Invoker  *Invoker

	Logger    Logger
	Telemetry Telemetry
	Memory    Memory
	Directory Directory

	Config *Config

	// HandlerMiddleware wraps the assembled handler stack; the telemetry
	// module installs otelhttp here
	HandlerMiddleware []func(http.Handler) http.Handler

	server             *http.Server
	mux                *http.ServeMux
	registeredPatterns map[string]bool

	mu      sync.RWMutex
	started bool
}

// NewService creates a service with default configuration
func NewService(name string) *Service {
	config := DefaultConfig()
	config.Name = name
	return NewServiceWithConfig(config)
}

// NewServiceWithConfig creates a service with custom configuration
func NewServiceWithConfig(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Name == "" {
		config.Name = "toolmesh-service"
	}
	if config.ID == "" {
		config.ID = fmt.Sprintf("%s-%s", config.Name, generateID())
	}

	logger := Logger(NewProductionLogger(config.Logging, config.Name))

	var memory Memory
	switch config.Memory.Provider {
	case "redis":
		store, err := NewRedisMemoryStore(config.Memory.RedisURL, config.Namespace)
		if err != nil {
			logger.Error("Failed to initialize Redis memory, falling back to in-memory", map[string]interface{}{
				"error": err.Error(),
			})
			memory = NewBoundedMemoryStore(config.Memory.MaxSize)
		} else {
			store.SetLogger(logger)
			memory = store
		}
	default:
		memory = NewBoundedMemoryStore(config.Memory.MaxSize)
	}

	registry := NewRegistry()
	registry.SetLogger(logger)

	svc := &Service{
		ID:                 config.ID,
		Name:               config.Name,
		Registry:           registry,
		Logger:             logger,
		Telemetry:          &NoOpTelemetry{},
		Memory:             memory,
		Config:             config,
		mux:                http.NewServeMux(),
		registeredPatterns: make(map[string]bool),
	}
	svc.rebuildInvoker()
	return svc
}

// rebuildInvoker reassembles the invoker from the service's current
// dependencies. Called when telemetry or memory are swapped in.
func (s *Service) rebuildInvoker() {
	s.Invoker = NewInvoker(s.Registry,
		WithLogger(s.Logger),
		WithTelemetry(s.Telemetry),
		WithMemory(s.Memory),
	)
}

// SetTelemetry installs a telemetry provider and rewires the invoker
func (s *Service) SetTelemetry(t Telemetry) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Telemetry = t
	s.rebuildInvoker()
}

// RegisterCapability adds a capability to the registry and wires its HTTP
// endpoints. Registration fails if the name is already taken.
func (s *Service) RegisterCapability(cap *Capability) error {
	if err := s.Registry.Register(cap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registeredPatterns[cap.Endpoint] {
		s.mux.HandleFunc(cap.Endpoint, s.handleInvocation(cap))
		s.registeredPatterns[cap.Endpoint] = true
	}

	if cap.SchemaEndpoint != "" && !s.registeredPatterns[cap.SchemaEndpoint] {
		s.mux.HandleFunc(cap.SchemaEndpoint, s.handleSchemaRequest(cap))
		s.registeredPatterns[cap.SchemaEndpoint] = true

		s.Logger.Debug("Registered schema endpoint", map[string]interface{}{
			"capability":      cap.Name,
			"schema_endpoint": cap.SchemaEndpoint,
		})
	}

	return nil
}

// invocationRequest is the wire format for capability invocations. Exactly
// one of Input or Args should be set, mirroring the two input forms.
type invocationRequest struct {
	Input string                 `json:"input"`
	Args  map[string]interface{} `json:"args"`
}

// handleInvocation serves POST requests against a capability endpoint
func (s *Service) handleInvocation(cap *Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req invocationRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				s.writeJSON(w, http.StatusBadRequest, InvocationResponse{
					Success: false,
					Error: &RecoverableError{
						Code:      "MALFORMED_REQUEST",
						Message:   fmt.Sprintf("request body is not valid JSON: %v", err),
						Category:  CategoryInputError,
						Retryable: true,
					},
				})
				return
			}
		}

		input := StringInput(req.Input)
		if req.Args != nil {
			input = StructuredInput(req.Args)
		}

		obs, err := s.Invoker.Invoke(r.Context(), cap.Name, input)
		if err != nil {
			if signal, ok := AsRecoverable(err); ok {
				s.writeJSON(w, HTTPStatusForCategory(signal.Category), InvocationResponse{
					Success: false,
					Error:   signal,
				})
				return
			}
			if errors.Is(err, ErrUnknownCapability) {
				http.Error(w, "Capability not found", http.StatusNotFound)
				return
			}
			s.Logger.Error("Invocation failed", map[string]interface{}{
				"capability": cap.Name,
				"error":      err.Error(),
			})
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.writeJSON(w, http.StatusOK, InvocationResponse{
			Success:     true,
			Observation: obs.Content,
			Recovered:   obs.Recovered,
			Direct:      obs.Direct,
			Error:       obs.Failure,
		})
	}
}

// handleSchemaRequest serves the generated JSON Schema document for a
// capability's declared input schema
func (s *Service) handleSchemaRequest(cap *Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		doc := cap.InputSchema.Document(cap.Name, cap.Description)
		s.writeJSON(w, http.StatusOK, doc)

		s.Logger.Debug("Schema request served", map[string]interface{}{
			"capability": cap.Name,
			"client":     r.RemoteAddr,
		})
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.Logger.Error("Failed to encode response", map[string]interface{}{
			"error":      err,
			"error_type": fmt.Sprintf("%T", err),
			"service_id": s.ID,
		})
	}
}

// setupStandardEndpoints adds /api/capabilities and the health endpoint
func (s *Service) setupStandardEndpoints() {
	capabilitiesPath := "/api/capabilities"
	if !s.registeredPatterns[capabilitiesPath] {
		s.mux.HandleFunc(capabilitiesPath, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.writeJSON(w, http.StatusOK, s.Registry.List())
		})
		s.registeredPatterns[capabilitiesPath] = true
	}

	if s.Config != nil && s.Config.HTTP.EnableHealthCheck {
		healthPath := s.Config.HTTP.HealthCheckPath
		if healthPath == "" {
			healthPath = "/health"
		}
		if !s.registeredPatterns[healthPath] {
			s.mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
				s.writeJSON(w, http.StatusOK, map[string]interface{}{
					"status":       "healthy",
					"name":         s.Name,
					"id":           s.ID,
					"capabilities": s.Registry.Len(),
				})
			})
			s.registeredPatterns[healthPath] = true
		}
	}
}

// Initialize sets up the directory connection and announces the service.
// Safe to call before or after capabilities are registered; Start announces
// again with the final capability list.
func (s *Service) Initialize(ctx context.Context) error {
	s.Logger.Info("Starting service initialization", map[string]interface{}{
		"id":                s.ID,
		"name":              s.Name,
		"directory_enabled": s.Config.Directory.Enabled,
		"namespace":         s.Config.Namespace,
	})

	if s.Config.Directory.Enabled && s.Directory == nil {
		if s.Config.Development.MockDirectory {
			s.Directory = NewMockDirectory()
			s.Logger.Info("Using mock directory for development", nil)
		} else if s.Config.Directory.Provider == "redis" && s.Config.Directory.RedisURL != "" {
			dir, err := NewRedisDirectoryWithNamespace(s.Config.Directory.RedisURL, s.Config.Namespace)
			if err != nil {
				s.Logger.Error("Failed to initialize Redis directory", map[string]interface{}{
					"error":     err.Error(),
					"redis_url": s.Config.Directory.RedisURL,
					"impact":    "service_will_run_without_directory",
				})
				return fmt.Errorf("failed to initialize directory: %w", err)
			}
			dir.SetLogger(s.Logger)
			dir.SetTTL(s.Config.Directory.TTL)
			s.Directory = dir
		}
	}

	if s.Directory != nil {
		if err := s.announce(ctx); err != nil {
			return fmt.Errorf("failed to announce service: %w", err)
		}
		if redisDir, ok := s.Directory.(*RedisDirectory); ok {
			redisDir.StartHeartbeat(ctx, s.ID)
			s.Logger.Info("Started announcement heartbeat", map[string]interface{}{
				"service_id": s.ID,
				"ttl_sec":    int(s.Config.Directory.TTL.Seconds()),
			})
		}
	} else {
		s.Logger.Warn("Service running without directory", map[string]interface{}{
			"impact": "service_not_discoverable",
		})
	}

	s.Logger.Info("Service initialization completed", map[string]interface{}{
		"id":                 s.ID,
		"name":               s.Name,
		"capabilities_count": s.Registry.Len(),
	})
	return nil
}

// announce publishes the current capability list to the directory
func (s *Service) announce(ctx context.Context) error {
	address, port := s.resolveAddress()

	caps := s.Registry.List()
	summaries := make([]CapabilitySummary, 0, len(caps))
	for _, cap := range caps {
		summaries = append(summaries, CapabilitySummary{
			Name:           cap.Name,
			Description:    cap.Description,
			Endpoint:       cap.Endpoint,
			SchemaEndpoint: cap.SchemaEndpoint,
		})
	}

	return s.Directory.Announce(ctx, &ServiceInfo{
		ID:           s.ID,
		Name:         s.Name,
		Address:      address,
		Port:         port,
		Capabilities: summaries,
		Health:       HealthHealthy,
		Metadata: map[string]string{
			"namespace": s.Config.Namespace,
		},
	})
}

// resolveAddress picks the externally reachable address for announcements.
// Kubernetes pods use their pod IP; otherwise the configured address.
func (s *Service) resolveAddress() (string, int) {
	address := s.Config.Address
	if podIP := os.Getenv("POD_IP"); podIP != "" {
		address = podIP
	}
	if address == "" {
		address = "localhost"
	}
	return address, s.Config.Port
}

// Start runs the HTTP server. The explicit port parameter wins over the
// configured port; pass -1 to use the configuration. Blocks until the
// server stops.
func (s *Service) Start(ctx context.Context, port int) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if port < 0 && s.Config != nil && s.Config.Port >= 0 {
		port = s.Config.Port
	}
	if port < 0 || port > 65535 {
		s.Logger.Error("Invalid port specified", map[string]interface{}{
			"requested_port": port,
			"valid_range":    "0-65535",
		})
		return fmt.Errorf("invalid port %d: must be between 0-65535 (0 for automatic assignment): %w", port, ErrInvalidConfiguration)
	}

	if s.Config == nil {
		s.Config = DefaultConfig()
	}

	s.setupStandardEndpoints()

	s.Logger.Info("Configuring HTTP server", map[string]interface{}{
		"port":                 port,
		"cors_enabled":         s.Config.HTTP.CORS.Enabled,
		"health_check_enabled": s.Config.HTTP.EnableHealthCheck,
		"read_timeout":         s.Config.HTTP.ReadTimeout.String(),
		"write_timeout":        s.Config.HTTP.WriteTimeout.String(),
		"registered_endpoints": len(s.registeredPatterns),
	})

	// Middleware order: CORS -> Logging -> Recovery -> mux
	var handler http.Handler = s.mux
	handler = RecoveryMiddleware(s.Logger)(handler)
	handler = LoggingMiddleware(s.Logger, s.Config.Development.Enabled)(handler)
	if s.Config.HTTP.CORS.Enabled {
		handler = CORSMiddleware(&s.Config.HTTP.CORS)(handler)
	}
	for _, mw := range s.HandlerMiddleware {
		handler = mw(handler)
	}

	s.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        handler,
		ReadTimeout:    s.Config.HTTP.ReadTimeout,
		WriteTimeout:   s.Config.HTTP.WriteTimeout,
		IdleTimeout:    s.Config.HTTP.IdleTimeout,
		MaxHeaderBytes: s.Config.HTTP.MaxHeaderBytes,
	}

	if s.Directory != nil {
		// Re-announce with the final capability list and serving port
		s.Config.Port = port
		if err := s.announce(ctx); err != nil {
			s.Logger.Error("Failed to update announcement", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	s.Logger.Info("Starting HTTP server", map[string]interface{}{
		"address":           s.server.Addr,
		"capabilities":      s.Registry.Len(),
		"directory_enabled": s.Directory != nil,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.Logger.Error("HTTP server failed", map[string]interface{}{
			"error":   err.Error(),
			"address": s.server.Addr,
		})
		return err
	}
	return nil
}

// Handler returns the service's HTTP mux with standard endpoints installed.
// Used by tests and by embedders that run their own server.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setupStandardEndpoints()
	return s.mux
}

// Shutdown withdraws the announcement and stops the HTTP server gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	s.Logger.Info("Shutting down service", map[string]interface{}{
		"name": s.Name,
	})

	if s.Directory != nil {
		if err := s.Directory.Withdraw(ctx, s.ID); err != nil {
			s.Logger.Error("Failed to withdraw announcement", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
