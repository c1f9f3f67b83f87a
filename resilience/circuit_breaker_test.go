package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/toolmesh/toolmesh/core"
)

func fastBreakerConfig() *CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 3
	cfg.RecoveryTimeout = 20 * time.Millisecond
	cfg.HalfOpenRequests = 2
	return cfg
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(fastBreakerConfig())
	ctx := context.Background()
	failing := func() error { return errors.New("connection refused") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, failing); err == nil {
			t.Fatal("Execute() error = nil for failing call")
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	err := cb.Execute(ctx, func() error {
		t.Error("open circuit must not execute the function")
		return nil
	})
	if !errors.Is(err, core.ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker(fastBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("down") })
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	time.Sleep(25 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after recovery timeout", cb.State())
	}

	// Two consecutive successful probes close the circuit
	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Fatalf("probe %d: Execute() error = %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(fastBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("down") })
	}
	time.Sleep(25 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want reopened", cb.State())
	}
}

func TestCircuitBreakerIgnoresDomainFailures(t *testing.T) {
	cb := NewCircuitBreaker(fastBreakerConfig())
	ctx := context.Background()

	// Recoverable signals are the capability talking to its caller, not an
	// infrastructure failure; they must not trip the breaker
	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func() error {
			return core.Recoverable("NOT_FOUND", "no such city", core.CategoryNotFound)
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestDefaultErrorClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"recoverable signal", core.Recoverable("X", "y", core.CategoryServiceError), false},
		{"configuration", core.ErrInvalidConfiguration, false},
		{"not found", core.ErrUnknownCapability, false},
		{"registration", core.ErrDuplicateCapability, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"network failure", errors.New("connection reset"), true},
		{"connection sentinel", core.ErrConnectionFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultErrorClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultErrorClassifier(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryWithCircuitBreaker(t *testing.T) {
	cfg := fastBreakerConfig()
	cfg.FailureThreshold = 2
	cb := NewCircuitBreaker(cfg)

	calls := 0
	err := RetryWithCircuitBreaker(context.Background(), fastRetryConfig(5), cb, func() error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	// The breaker opens after 2 failures; remaining attempts are rejected
	// without invoking the function
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
