package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// generateID generates a unique ID for services
func generateID() string {
	return uuid.New().String()[:8]
}

// Input carries the argument of a single invocation. A capability either
// accepts one opaque string (Raw) or a structured record (Args) matching
// its declared schema; exactly one of the two forms is populated.
type Input struct {
	Raw  string
	Args map[string]interface{}
}

// StringInput wraps an opaque string argument
func StringInput(s string) Input {
	return Input{Raw: s}
}

// StructuredInput wraps structured arguments
func StructuredInput(args map[string]interface{}) Input {
	return Input{Args: args}
}

// Structured reports whether the input carries structured arguments
func (in Input) Structured() bool {
	return in.Args != nil
}

// Handler executes a capability against one input and produces one
// text observation. Raising a *RecoverableError signals a domain failure
// the Invoker may translate; any other error is fatal to the invocation.
type Handler func(ctx context.Context, input Input) (string, error)

// Observation is the result of one capability invocation.
type Observation struct {
	// Content is the observation text fed back to the orchestrator
	Content string

	// Direct mirrors the capability's DirectReturn flag: the orchestrator
	// should surface Content as the final result, bypassing further reasoning
	Direct bool

	// Recovered marks an observation produced by error translation rather
	// than by the handler completing normally
	Recovered bool

	// Failure carries the original signal behind a recovered observation,
	// so transcripts can render translated failures distinctly
	Failure *RecoverableError
}

// RecoveryHandler converts a recoverable failure into an observation string.
// A handler that panics propagates as a fatal fault (no nested recovery).
type RecoveryHandler func(*RecoverableError) string

type policyKind int

const (
	policyPropagate policyKind = iota
	policyFixedMessage
	policyHandler
)

// ErrorPolicy determines how the Invoker translates a RecoverableError
// raised during capability execution. The zero value propagates the failure,
// which is the default for capabilities that declare no policy.
type ErrorPolicy struct {
	kind    policyKind
	message string
	handler RecoveryHandler
}

// PropagateErrors is the default policy: recoverable failures re-surface
// as errors and the invocation halts.
func PropagateErrors() ErrorPolicy {
	return ErrorPolicy{kind: policyPropagate}
}

// FixedMessage translates every recoverable failure into the given text,
// ignoring the signal's own message.
func FixedMessage(text string) ErrorPolicy {
	return ErrorPolicy{kind: policyFixedMessage, message: text}
}

// HandleWith translates recoverable failures through fn. The returned
// string becomes the observation.
func HandleWith(fn RecoveryHandler) ErrorPolicy {
	return ErrorPolicy{kind: policyHandler, handler: fn}
}

// Translates reports whether the policy produces an observation instead
// of propagating the failure.
func (p ErrorPolicy) Translates() bool {
	return p.kind != policyPropagate
}

// Capability describes one named unit of work an orchestrator can invoke.
// Descriptors are immutable once registered; the registry only reads them.
type Capability struct {
	// Name is the dispatch key, unique within a registry
	Name string `json:"name"`

	// Description is free text consumed by the orchestrator's reasoning
	// process; the core never validates it
	Description string `json:"description"`

	// Endpoint is the HTTP path the capability is served under.
	// Auto-generated as /api/capabilities/{name} when empty.
	Endpoint string `json:"endpoint,omitempty"`

	// SchemaEndpoint serves the generated JSON Schema document.
	// Populated automatically when InputSchema is declared.
	SchemaEndpoint string `json:"schema_endpoint,omitempty"`

	// InputSchema describes structured arguments. When nil the capability
	// accepts a single opaque string.
	InputSchema *Schema `json:"input_schema,omitempty"`

	// DirectReturn signals the dispatcher that the output is the final
	// result rather than input to further reasoning
	DirectReturn bool `json:"direct_return,omitempty"`

	// ErrorPolicy controls recoverable-failure translation (see Invoker)
	ErrorPolicy ErrorPolicy `json:"-"`

	// Handler is the underlying callable
	Handler Handler `json:"-"`
}

// Validate checks the descriptor is registrable
func (c *Capability) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("capability name is empty: %w", ErrInvalidCapability)
	}
	if c.Handler == nil {
		return fmt.Errorf("capability %q has no handler: %w", c.Name, ErrInvalidCapability)
	}
	return nil
}
