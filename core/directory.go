package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus describes a service's health in the directory
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// CapabilitySummary is the directory-visible slice of a capability:
// descriptor metadata only, no handler or policy.
type CapabilitySummary struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	SchemaEndpoint string `json:"schema_endpoint,omitempty"`
}

// ServiceInfo is what a service announces about itself
type ServiceInfo struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Address      string              `json:"address"`
	Port         int                 `json:"port"`
	Capabilities []CapabilitySummary `json:"capabilities"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
	Health       HealthStatus        `json:"health"`
	LastSeen     time.Time           `json:"last_seen"`
}

// Directory lets services announce their capabilities and find each other.
// Entries expire unless refreshed by a heartbeat.
type Directory interface {
	Announce(ctx context.Context, info *ServiceInfo) error
	UpdateHealth(ctx context.Context, serviceID string, health HealthStatus) error
	Withdraw(ctx context.Context, serviceID string) error
	FindByCapability(ctx context.Context, capability string) ([]*ServiceInfo, error)
	FindService(ctx context.Context, serviceName string) ([]*ServiceInfo, error)
}

// MockDirectory is an in-memory Directory for tests and local development
type MockDirectory struct {
	mu       sync.RWMutex
	services map[string]*ServiceInfo
}

// NewMockDirectory creates an empty in-memory directory
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		services: make(map[string]*ServiceInfo),
	}
}

// Announce records or refreshes a service entry
func (m *MockDirectory) Announce(ctx context.Context, info *ServiceInfo) error {
	if info == nil || info.ID == "" {
		return fmt.Errorf("service info requires an ID: %w", ErrInvalidConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *info
	stored.LastSeen = time.Now()
	if stored.Health == "" {
		stored.Health = HealthHealthy
	}
	m.services[info.ID] = &stored
	return nil
}

// UpdateHealth changes the recorded health of a service
func (m *MockDirectory) UpdateHealth(ctx context.Context, serviceID string, health HealthStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.services[serviceID]
	if !exists {
		return fmt.Errorf("service %s: %w", serviceID, ErrServiceNotFound)
	}
	info.Health = health
	info.LastSeen = time.Now()
	return nil
}

// Withdraw removes a service entry
func (m *MockDirectory) Withdraw(ctx context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, serviceID)
	return nil
}

// FindByCapability returns services announcing the named capability
func (m *MockDirectory) FindByCapability(ctx context.Context, capability string) ([]*ServiceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*ServiceInfo
	for _, info := range m.services {
		for _, cap := range info.Capabilities {
			if cap.Name == capability {
				copied := *info
				results = append(results, &copied)
				break
			}
		}
	}
	return results, nil
}

// FindService returns services registered under the given name
func (m *MockDirectory) FindService(ctx context.Context, serviceName string) ([]*ServiceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*ServiceInfo
	for _, info := range m.services {
		if info.Name == serviceName {
			copied := *info
			results = append(results, &copied)
		}
	}
	return results, nil
}
