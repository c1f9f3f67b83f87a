package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/toolmesh/toolmesh/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier determines which errors count toward the failure threshold
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts infrastructure failures only. Recoverable
// domain failures are the capability telling its caller something, not a sign
// the backend is down; tripping the breaker on them would mask valid signals.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if _, recoverable := core.AsRecoverable(err); recoverable {
		return false
	}
	if core.IsConfigurationError(err) || core.IsNotFound(err) || core.IsRegistrationError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs
	Name string

	// FailureThreshold is the number of consecutive counted failures
	// before the circuit opens
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before allowing
	// half-open test requests
	RecoveryTimeout time.Duration

	// HalfOpenRequests is the number of consecutive successes in half-open
	// state needed to close the circuit
	HalfOpenRequests int

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for state change events
	Logger core.Logger
}

// DefaultCircuitBreakerConfig returns a production-ready configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 3,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker protects a downstream dependency from repeated calls while
// it is failing. Closed passes everything through; open rejects immediately;
// half-open lets a few test requests probe for recovery.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	halfOpenSuccess int
	lastStateChange time.Time
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 3
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current state, accounting for recovery timeout expiry
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransitionLocked()
	return cb.state
}

// CanExecute reports whether a request may proceed
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransitionLocked()
	return cb.state != StateOpen
}

// maybeTransitionLocked moves open -> half-open after the recovery timeout.
// Caller holds the lock.
func (cb *CircuitBreaker) maybeTransitionLocked() {
	if cb.state == StateOpen && time.Since(cb.lastStateChange) >= cb.config.RecoveryTimeout {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.lastStateChange = time.Now()
	cb.halfOpenSuccess = 0
	if next == StateClosed {
		cb.failures = 0
	}
	cb.config.Logger.Info("Circuit breaker state change", map[string]interface{}{
		"name": cb.config.Name,
		"from": prev.String(),
		"to":   next.String(),
	})
}

// RecordSuccess notes a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.config.HalfOpenRequests {
			cb.setStateLocked(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure notes a failed call. Errors the classifier filters out do
// not count toward the threshold.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.config.ErrorClassifier(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateHalfOpen:
		// A failed probe reopens immediately
		cb.setStateLocked(StateOpen)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.setStateLocked(StateOpen)
		}
	}
}

// Execute runs fn under the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.CanExecute() {
		return core.ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.RecordFailure(err)
		return err
	}
	cb.RecordSuccess()
	return nil
}
