package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// StringFunc is an ordinary function taking one opaque string argument
type StringFunc func(ctx context.Context, input string) (string, error)

// StructuredFunc is an ordinary function taking named structured arguments
type StructuredFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// CapabilityOption configures a capability built by the function adapters
type CapabilityOption func(*Capability)

// WithDirectReturn marks the capability's output as the final result
func WithDirectReturn() CapabilityOption {
	return func(c *Capability) {
		c.DirectReturn = true
	}
}

// WithErrorPolicy sets how recoverable failures are translated
func WithErrorPolicy(policy ErrorPolicy) CapabilityOption {
	return func(c *Capability) {
		c.ErrorPolicy = policy
	}
}

// WithEndpoint overrides the auto-generated HTTP endpoint path
func WithEndpoint(path string) CapabilityOption {
	return func(c *Capability) {
		c.Endpoint = path
	}
}

// WithDescription overrides the description supplied to the adapter
func WithDescription(description string) CapabilityOption {
	return func(c *Capability) {
		c.Description = description
	}
}

// FromFunc adapts a one-string-argument function into a capability
// descriptor. The capability accepts a single opaque string; structured
// input handed to it is re-encoded as a JSON string so the function still
// receives one argument.
func FromFunc(name, description string, fn StringFunc, opts ...CapabilityOption) (*Capability, error) {
	if fn == nil {
		return nil, fmt.Errorf("capability %q: nil function: %w", name, ErrInvalidCapability)
	}

	cap := &Capability{
		Name:        name,
		Description: description,
		Handler: func(ctx context.Context, input Input) (string, error) {
			raw := input.Raw
			if input.Structured() {
				data, err := json.Marshal(input.Args)
				if err != nil {
					return "", fmt.Errorf("capability %q: failed to encode structured input: %w", name, err)
				}
				raw = string(data)
			}
			return fn(ctx, raw)
		},
	}
	for _, opt := range opts {
		opt(cap)
	}

	if err := cap.Validate(); err != nil {
		return nil, err
	}
	return cap, nil
}

// FromStructuredFunc adapts a named-arguments function into a structured
// capability. The explicit schema is required: automatic inference from a
// function signature is deliberately unsupported, so a missing or empty
// schema fails with ErrSchemaInference at construction time. Opaque string
// input handed to the capability is decoded as a JSON object; anything else
// is reported as a recoverable INPUT_ERROR.
func FromStructuredFunc(name, description string, schema *Schema, fn StructuredFunc, opts ...CapabilityOption) (*Capability, error) {
	if fn == nil {
		return nil, fmt.Errorf("capability %q: nil function: %w", name, ErrInvalidCapability)
	}
	if schema.Empty() {
		return nil, fmt.Errorf("capability %q takes structured arguments but no field descriptors were supplied: %w", name, ErrSchemaInference)
	}

	cap := &Capability{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Handler: func(ctx context.Context, input Input) (string, error) {
			args := input.Args
			if !input.Structured() {
				if err := json.Unmarshal([]byte(input.Raw), &args); err != nil {
					return "", &RecoverableError{
						Code:      "MALFORMED_INPUT",
						Message:   fmt.Sprintf("expected a JSON object for capability %q: %v", name, err),
						Category:  CategoryInputError,
						Retryable: true,
					}
				}
			}
			return fn(ctx, args)
		},
	}
	for _, opt := range opts {
		opt(cap)
	}

	if err := cap.Validate(); err != nil {
		return nil, err
	}
	return cap, nil
}
