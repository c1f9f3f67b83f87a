package core

import (
	"context"
	"fmt"
)

// Framework bundles a service with a resolved configuration and runs it.
// It is the convenience entry point for the common case: build a config from
// options, wire the service, initialize, serve.
type Framework struct {
	service *Service
	config  *Config
}

// NewFramework creates a framework instance with options applied over the
// environment and defaults
func NewFramework(service *Service, opts ...Option) (*Framework, error) {
	if service == nil {
		return nil, fmt.Errorf("framework requires a service: %w", ErrInvalidConfiguration)
	}

	config, err := NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	service.Config = config
	service.Name = config.Name
	if config.ID != "" {
		service.ID = config.ID
	}

	return &Framework{
		service: service,
		config:  config,
	}, nil
}

// Run initializes the service and blocks serving HTTP until the server stops
func (f *Framework) Run(ctx context.Context) error {
	if err := f.service.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	return f.service.Start(ctx, f.config.Port)
}
