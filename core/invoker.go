package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Invoker executes capabilities through the error translation layer.
//
// The invocation contract:
//  1. The handler completes normally → its output is the observation,
//     unmodified.
//  2. The handler raises a *RecoverableError and the capability's policy
//     propagates (the default) → the error is returned, no observation.
//  3. Policy is FixedMessage(text) → the observation is exactly text,
//     the signal's own message is ignored.
//  4. Policy is HandleWith(fn) → the observation is fn(signal). A panic
//     inside fn propagates as fatal; there is no nested recovery.
//  5. Any other error type propagates untouched regardless of policy, so
//     infrastructure and programming faults always halt the invocation.
type Invoker struct {
	registry  *Registry
	logger    Logger
	telemetry Telemetry
	memory    Memory

	// transcriptTTL bounds how long the last observation per capability
	// is kept in memory for transcript inspection
	transcriptTTL time.Duration
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithLogger sets the invocation logger
func WithLogger(logger Logger) InvokerOption {
	return func(inv *Invoker) {
		if logger != nil {
			inv.logger = logger
		}
	}
}

// WithTelemetry sets the telemetry provider for invocation spans and metrics
func WithTelemetry(telemetry Telemetry) InvokerOption {
	return func(inv *Invoker) {
		if telemetry != nil {
			inv.telemetry = telemetry
		}
	}
}

// WithMemory enables invocation transcripts: the last observation of each
// capability is stored under invocations:{name}:last
func WithMemory(memory Memory) InvokerOption {
	return func(inv *Invoker) {
		inv.memory = memory
	}
}

// NewInvoker creates an invoker over a registry with no-op dependencies
// unless options say otherwise
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry:      registry,
		logger:        &NoOpLogger{},
		telemetry:     &NoOpTelemetry{},
		transcriptTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke resolves name, validates structured input against the declared
// schema, runs the handler, and applies the capability's error policy.
func (inv *Invoker) Invoke(ctx context.Context, name string, input Input) (Observation, error) {
	cap, err := inv.registry.Resolve(name)
	if err != nil {
		inv.logger.Warn("Invocation of unknown capability", map[string]interface{}{
			"capability": name,
		})
		return Observation{}, err
	}

	ctx, span := inv.telemetry.StartSpan(ctx, fmt.Sprintf("capability.%s", name))
	defer span.End()
	span.SetAttribute("capability.name", name)
	span.SetAttribute("capability.direct_return", cap.DirectReturn)
	span.SetAttribute("input.structured", input.Structured())

	start := time.Now()

	if cap.InputSchema != nil {
		// Schema-bearing capabilities may still be handed an opaque JSON
		// string by an orchestrator; decode it so validation applies.
		if !input.Structured() {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(input.Raw), &args); err == nil {
				input = StructuredInput(args)
			}
		}
		if input.Structured() {
			if err := cap.InputSchema.ValidateArgs(cap.Name, input.Args); err != nil {
				return inv.translate(ctx, cap, err, span, start)
			}
		}
	}

	output, err := cap.Handler(ctx, input)
	if err != nil {
		return inv.translate(ctx, cap, err, span, start)
	}

	obs := Observation{Content: output, Direct: cap.DirectReturn}
	inv.record(ctx, cap, obs, "success", start)
	return obs, nil
}

// translate applies the capability's error policy to a handler failure
func (inv *Invoker) translate(ctx context.Context, cap *Capability, err error, span Span, start time.Time) (Observation, error) {
	signal, recoverable := AsRecoverable(err)
	if !recoverable {
		// Unrecoverable fault: propagate untouched, never mask bugs.
		span.RecordError(err)
		inv.logger.Error("Capability invocation failed", map[string]interface{}{
			"capability":  cap.Name,
			"error":       err.Error(),
			"error_type":  fmt.Sprintf("%T", err),
			"recoverable": false,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		inv.telemetry.RecordMetric("toolmesh.invocations", 1, map[string]string{
			"capability": cap.Name,
			"outcome":    "fatal",
		})
		return Observation{}, err
	}

	if !cap.ErrorPolicy.Translates() {
		// Default/unset policy: re-raise, the invocation halts.
		span.RecordError(signal)
		inv.logger.Warn("Recoverable failure propagated (no policy set)", map[string]interface{}{
			"capability":  cap.Name,
			"code":        signal.Code,
			"category":    string(signal.Category),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		inv.telemetry.RecordMetric("toolmesh.invocations", 1, map[string]string{
			"capability": cap.Name,
			"outcome":    "propagated",
		})
		return Observation{}, signal
	}

	var content string
	switch cap.ErrorPolicy.kind {
	case policyFixedMessage:
		content = cap.ErrorPolicy.message
	case policyHandler:
		// A recovery handler that panics propagates as fatal.
		content = cap.ErrorPolicy.handler(signal)
	}

	obs := Observation{
		Content:   content,
		Direct:    cap.DirectReturn,
		Recovered: true,
		Failure:   signal,
	}
	inv.record(ctx, cap, obs, "recovered", start)
	return obs, nil
}

// record logs the outcome, counts it, and stores the transcript entry
func (inv *Invoker) record(ctx context.Context, cap *Capability, obs Observation, outcome string, start time.Time) {
	fields := map[string]interface{}{
		"capability":    cap.Name,
		"outcome":       outcome,
		"direct_return": obs.Direct,
		"output_size":   len(obs.Content),
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	if obs.Recovered {
		fields["failure_code"] = obs.Failure.Code
		fields["failure_category"] = string(obs.Failure.Category)
		inv.logger.Warn("Capability failure translated to observation", fields)
	} else {
		inv.logger.Info("Capability invocation completed", fields)
	}

	inv.telemetry.RecordMetric("toolmesh.invocations", 1, map[string]string{
		"capability": cap.Name,
		"outcome":    outcome,
	})

	if inv.memory != nil {
		entry, err := json.Marshal(InvocationResponse{
			Success:     true,
			Observation: obs.Content,
			Recovered:   obs.Recovered,
			Direct:      obs.Direct,
			Error:       obs.Failure,
		})
		if err == nil {
			key := fmt.Sprintf("invocations:%s:last", cap.Name)
			if err := inv.memory.Set(ctx, key, string(entry), inv.transcriptTTL); err != nil {
				inv.logger.Debug("Failed to store invocation transcript", map[string]interface{}{
					"capability": cap.Name,
					"error":      err.Error(),
				})
			}
		}
	}
}

// LastObservation returns the stored transcript entry for a capability,
// or false when no invocation has been recorded (or memory is disabled)
func (inv *Invoker) LastObservation(ctx context.Context, name string) (*InvocationResponse, bool) {
	if inv.memory == nil {
		return nil, false
	}
	raw, err := inv.memory.Get(ctx, fmt.Sprintf("invocations:%s:last", name))
	if err != nil || raw == "" {
		return nil, false
	}
	var resp InvocationResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}
