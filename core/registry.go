package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the mapping from capability name to descriptor. It is the
// dispatch table an Invoker resolves against.
//
// Duplicate policy: registering a name that is already present FAILS with
// ErrDuplicateCapability. Registration never overwrites, so repeated
// attempts are deterministic and collisions surface at setup time instead
// of invocation time.
//
// The registry is read-mostly: descriptors are added during setup and only
// looked up afterwards. An RWMutex keeps concurrent registration safe
// without penalizing lookups.
type Registry struct {
	mu     sync.RWMutex
	caps   map[string]*Capability
	logger Logger
}

// NewRegistry creates an empty capability registry
func NewRegistry() *Registry {
	return &Registry{
		caps:   make(map[string]*Capability),
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for registration events
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds a capability descriptor. The descriptor is validated and
// its endpoints are filled in; it must not be mutated afterwards.
func (r *Registry) Register(cap *Capability) error {
	if cap == nil {
		return &FrameworkError{Op: "registry.Register", Kind: "capability", Err: ErrInvalidCapability}
	}
	if err := cap.Validate(); err != nil {
		return &FrameworkError{Op: "registry.Register", Kind: "capability", ID: cap.Name, Err: err}
	}

	// Auto-generate endpoints before taking the lock; these are part of
	// the immutable descriptor.
	if cap.Endpoint == "" {
		cap.Endpoint = fmt.Sprintf("/api/capabilities/%s", cap.Name)
	}
	if cap.InputSchema != nil && cap.SchemaEndpoint == "" {
		cap.SchemaEndpoint = fmt.Sprintf("%s/schema", cap.Endpoint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[cap.Name]; exists {
		r.logger.Warn("Rejected duplicate capability registration", map[string]interface{}{
			"name": cap.Name,
		})
		return &FrameworkError{Op: "registry.Register", Kind: "capability", ID: cap.Name, Err: ErrDuplicateCapability}
	}

	r.caps[cap.Name] = cap

	r.logger.Info("Registered capability", map[string]interface{}{
		"name":          cap.Name,
		"endpoint":      cap.Endpoint,
		"has_schema":    cap.InputSchema != nil,
		"direct_return": cap.DirectReturn,
		"translates":    cap.ErrorPolicy.Translates(),
	})

	return nil
}

// Resolve returns the descriptor registered under name. Lookup of an
// unregistered name always fails with ErrUnknownCapability, never a default.
func (r *Registry) Resolve(name string) (*Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cap, exists := r.caps[name]
	if !exists {
		return nil, &FrameworkError{Op: "registry.Resolve", Kind: "capability", ID: name, Err: ErrUnknownCapability}
	}
	return cap, nil
}

// List returns all registered descriptors sorted by name.
// The slice is a copy; the registry's own state cannot be modified through it.
func (r *Registry) List() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]*Capability, 0, len(r.caps))
	for _, cap := range r.caps {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// Names returns the registered capability names sorted alphabetically
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deregister removes the capability registered under name. Removing an
// unregistered name fails with ErrUnknownCapability.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[name]; !exists {
		return &FrameworkError{Op: "registry.Deregister", Kind: "capability", ID: name, Err: ErrUnknownCapability}
	}
	delete(r.caps, name)

	r.logger.Info("Deregistered capability", map[string]interface{}{
		"name": name,
	})
	return nil
}

// Len returns the number of registered capabilities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}
