// Package langchain bridges toolmesh capabilities and langchaingo tools in
// both directions: a registered capability can be handed to a langchaingo
// agent as a tools.Tool, and an existing langchaingo tool can be registered
// as a capability.
package langchain

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools"

	"github.com/toolmesh/toolmesh/core"
)

// CapabilityTool exposes one registered capability as a langchaingo tool.
// Call routes through the invoker, so error translation applies exactly as
// it would for any other caller.
type CapabilityTool struct {
	invoker     *core.Invoker
	name        string
	description string
}

// compile-time interface check
var _ tools.Tool = (*CapabilityTool)(nil)

// NewCapabilityTool wraps a capability for use by a langchaingo agent.
// Fails if the name is not registered, so wiring mistakes surface at setup.
func NewCapabilityTool(registry *core.Registry, invoker *core.Invoker, name string) (*CapabilityTool, error) {
	cap, err := registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &CapabilityTool{
		invoker:     invoker,
		name:        cap.Name,
		description: cap.Description,
	}, nil
}

// Name returns the capability name the agent dispatches on
func (t *CapabilityTool) Name() string {
	return t.name
}

// Description returns the free-text description the agent reasons over
func (t *CapabilityTool) Description() string {
	return t.description
}

// Call invokes the capability with an opaque string input. Translated
// failures come back as ordinary observations; propagated failures come
// back as errors the agent framework handles.
func (t *CapabilityTool) Call(ctx context.Context, input string) (string, error) {
	obs, err := t.invoker.Invoke(ctx, t.name, core.StringInput(input))
	if err != nil {
		return "", err
	}
	return obs.Content, nil
}

// Tools wraps every capability in the registry for a langchaingo agent
func Tools(registry *core.Registry, invoker *core.Invoker) []tools.Tool {
	caps := registry.List()
	wrapped := make([]tools.Tool, 0, len(caps))
	for _, cap := range caps {
		wrapped = append(wrapped, &CapabilityTool{
			invoker:     invoker,
			name:        cap.Name,
			description: cap.Description,
		})
	}
	return wrapped
}

// FromTool registers an existing langchaingo tool as a capability. The
// tool's name and description carry over; options can set an error policy
// or direct return.
//
// Errors returned by the wrapped tool are treated as service failures the
// capability's policy may translate, since langchaingo tools have no
// structured failure protocol of their own.
func FromTool(t tools.Tool, opts ...core.CapabilityOption) *core.Capability {
	handler := func(ctx context.Context, input core.Input) (string, error) {
		raw := input.Raw
		if input.Structured() {
			raw = fmt.Sprintf("%v", input.Args)
		}
		out, err := t.Call(ctx, raw)
		if err != nil {
			if _, recoverable := core.AsRecoverable(err); recoverable {
				return "", err
			}
			return "", &core.RecoverableError{
				Code:      "TOOL_CALL_FAILED",
				Message:   err.Error(),
				Category:  core.CategoryServiceError,
				Retryable: true,
			}
		}
		return out, nil
	}

	cap := &core.Capability{
		Name:        t.Name(),
		Description: t.Description(),
		Handler:     handler,
	}
	for _, opt := range opts {
		opt(cap)
	}
	return cap
}
