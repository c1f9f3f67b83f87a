package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
)

// newCalculator builds the power-expression capability used across tests.
// It returns its result directly and declares no error policy.
func newCalculator(t *testing.T) *Capability {
	t.Helper()
	cap, err := FromFunc("Calculator", "Evaluates power expressions like '2**10'",
		func(ctx context.Context, input string) (string, error) {
			parts := strings.SplitN(input, "**", 2)
			if len(parts) != 2 {
				return "", Recoverable("BAD_EXPRESSION", "expected 'base**exponent'", CategoryInputError)
			}
			base, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			exp, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 != nil || err2 != nil {
				return "", Recoverable("BAD_OPERAND", "operands must be numbers", CategoryInputError)
			}
			return fmt.Sprintf("%g", math.Pow(base, exp)), nil
		},
		WithDirectReturn(),
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	return cap
}

// newFailingSearch builds a capability whose backend is always down, with a
// fixed-message error policy steering the caller elsewhere.
func newFailingSearch(t *testing.T) *Capability {
	t.Helper()
	cap, err := FromFunc("Search_tool1", "Searches the product knowledge base",
		func(ctx context.Context, input string) (string, error) {
			return "", Recoverable("BACKEND_DOWN", "knowledge base unavailable", CategoryServiceError)
		},
		WithErrorPolicy(FixedMessage("try another tool")),
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	return cap
}

func newTestInvoker(t *testing.T, caps ...*Capability) *Invoker {
	t.Helper()
	registry := NewRegistry()
	for _, cap := range caps {
		if err := registry.Register(cap); err != nil {
			t.Fatalf("Register(%s) error = %v", cap.Name, err)
		}
	}
	return NewInvoker(registry)
}

func TestInvokeSuccess(t *testing.T) {
	inv := newTestInvoker(t, newCalculator(t))

	obs, err := inv.Invoke(context.Background(), "Calculator", StringInput("2**10"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if obs.Content != "1024" {
		t.Errorf("Invoke() = %q, want %q", obs.Content, "1024")
	}
	if !obs.Direct {
		t.Error("Invoke() Direct = false, want true")
	}
	if obs.Recovered {
		t.Error("Invoke() Recovered = true, want false")
	}
}

func TestInvokeFractionalExponent(t *testing.T) {
	inv := newTestInvoker(t, newCalculator(t))

	obs, err := inv.Invoke(context.Background(), "Calculator", StringInput("2**0.5"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	got, err := strconv.ParseFloat(obs.Content, 64)
	if err != nil {
		t.Fatalf("output %q is not a number: %v", obs.Content, err)
	}
	if math.Abs(got-math.Sqrt2) > 1e-9 {
		t.Errorf("Invoke(2**0.5) = %v, want %v", got, math.Sqrt2)
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	inv := newTestInvoker(t, newCalculator(t))

	_, err := inv.Invoke(context.Background(), "Nonexistent", StringInput("x"))
	if !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Invoke(unknown) error = %v, want ErrUnknownCapability", err)
	}
}

func TestInvokeFixedMessagePolicy(t *testing.T) {
	inv := newTestInvoker(t, newFailingSearch(t))

	obs, err := inv.Invoke(context.Background(), "Search_tool1", StringInput("anything"))
	if err != nil {
		t.Fatalf("Invoke() error = %v, want translated observation", err)
	}
	// The policy text replaces the signal's own message exactly
	if obs.Content != "try another tool" {
		t.Errorf("Invoke() = %q, want %q", obs.Content, "try another tool")
	}
	if !obs.Recovered {
		t.Error("Invoke() Recovered = false, want true")
	}
	if obs.Failure == nil || obs.Failure.Code != "BACKEND_DOWN" {
		t.Errorf("Invoke() Failure = %+v, want original signal preserved", obs.Failure)
	}
}

func TestInvokePropagateByDefault(t *testing.T) {
	// Same failing handler, but no policy: the signal re-surfaces as an error
	cap, err := FromFunc("flaky", "always fails",
		func(ctx context.Context, input string) (string, error) {
			return "", Recoverable("BACKEND_DOWN", "unavailable", CategoryServiceError)
		},
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	inv := newTestInvoker(t, cap)

	obs, err := inv.Invoke(context.Background(), "flaky", StringInput("x"))
	if err == nil {
		t.Fatalf("Invoke() = %+v, want propagated error", obs)
	}
	signal, ok := AsRecoverable(err)
	if !ok {
		t.Fatalf("Invoke() error = %v (%T), want *RecoverableError", err, err)
	}
	if signal.Code != "BACKEND_DOWN" {
		t.Errorf("signal.Code = %q, want %q", signal.Code, "BACKEND_DOWN")
	}
}

func TestInvokeHandlerPolicy(t *testing.T) {
	cap, err := FromFunc("flaky", "always fails",
		func(ctx context.Context, input string) (string, error) {
			return "", Recoverable("BACKEND_DOWN", "unavailable", CategoryServiceError)
		},
		WithErrorPolicy(HandleWith(func(signal *RecoverableError) string {
			return "prefix:" + signal.Message
		})),
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	inv := newTestInvoker(t, cap)

	obs, err := inv.Invoke(context.Background(), "flaky", StringInput("x"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if obs.Content != "prefix:unavailable" {
		t.Errorf("Invoke() = %q, want %q", obs.Content, "prefix:unavailable")
	}
	if !obs.Recovered {
		t.Error("Invoke() Recovered = false, want true")
	}
}

func TestInvokeHandlerPanicPropagates(t *testing.T) {
	cap, err := FromFunc("flaky", "always fails",
		func(ctx context.Context, input string) (string, error) {
			return "", Recoverable("BACKEND_DOWN", "unavailable", CategoryServiceError)
		},
		WithErrorPolicy(HandleWith(func(signal *RecoverableError) string {
			panic("recovery handler bug")
		})),
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	inv := newTestInvoker(t, cap)

	defer func() {
		if recover() == nil {
			t.Error("Invoke() did not propagate the recovery handler panic")
		}
	}()
	_, _ = inv.Invoke(context.Background(), "flaky", StringInput("x"))
}

func TestInvokeUnrelatedFaultPropagatesUntouched(t *testing.T) {
	boom := errors.New("nil pointer in handler")
	cap, err := FromFunc("buggy", "raises a programming fault",
		func(ctx context.Context, input string) (string, error) {
			return "", boom
		},
		// A policy is set, but it must not apply to non-recoverable faults
		WithErrorPolicy(FixedMessage("should never appear")),
	)
	if err != nil {
		t.Fatalf("FromFunc() error = %v", err)
	}
	inv := newTestInvoker(t, cap)

	_, err = inv.Invoke(context.Background(), "buggy", StringInput("x"))
	if !errors.Is(err, boom) {
		t.Errorf("Invoke() error = %v, want the original fault unchanged", err)
	}
}

func TestInvokeSchemaValidation(t *testing.T) {
	schema := &Schema{
		RequiredFields: []FieldSpec{
			{Name: "city", Type: "string", Description: "city name"},
		},
		OptionalFields: []FieldSpec{
			{Name: "units", Type: "string"},
		},
	}
	cap, err := FromStructuredFunc("weather", "looks up weather", schema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			return fmt.Sprintf("sunny in %v", args["city"]), nil
		},
	)
	if err != nil {
		t.Fatalf("FromStructuredFunc() error = %v", err)
	}
	inv := newTestInvoker(t, cap)

	tests := []struct {
		name     string
		input    Input
		wantErr  bool
		wantCode string
		want     string
	}{
		{
			name:  "valid args",
			input: StructuredInput(map[string]interface{}{"city": "Oslo"}),
			want:  "sunny in Oslo",
		},
		{
			name:  "valid raw JSON decoded before validation",
			input: StringInput(`{"city": "Oslo", "units": "metric"}`),
			want:  "sunny in Oslo",
		},
		{
			name:     "missing required field",
			input:    StructuredInput(map[string]interface{}{"units": "metric"}),
			wantErr:  true,
			wantCode: "SCHEMA_VALIDATION_FAILED",
		},
		{
			name:     "wrong type",
			input:    StructuredInput(map[string]interface{}{"city": 42}),
			wantErr:  true,
			wantCode: "SCHEMA_VALIDATION_FAILED",
		},
		{
			name:     "undeclared field rejected",
			input:    StructuredInput(map[string]interface{}{"city": "Oslo", "bogus": true}),
			wantErr:  true,
			wantCode: "SCHEMA_VALIDATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := inv.Invoke(context.Background(), "weather", tt.input)
			if tt.wantErr {
				signal, ok := AsRecoverable(err)
				if !ok {
					t.Fatalf("Invoke() error = %v, want *RecoverableError", err)
				}
				if signal.Code != tt.wantCode {
					t.Errorf("signal.Code = %q, want %q", signal.Code, tt.wantCode)
				}
				if signal.Category != CategoryInputError {
					t.Errorf("signal.Category = %q, want %q", signal.Category, CategoryInputError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if obs.Content != tt.want {
				t.Errorf("Invoke() = %q, want %q", obs.Content, tt.want)
			}
		})
	}
}

func TestInvokeRepeatedFailuresAreDeterministic(t *testing.T) {
	inv := newTestInvoker(t, newFailingSearch(t))

	for i := 0; i < 5; i++ {
		obs, err := inv.Invoke(context.Background(), "Search_tool1", StringInput("q"))
		if err != nil {
			t.Fatalf("attempt %d: Invoke() error = %v", i, err)
		}
		if obs.Content != "try another tool" {
			t.Fatalf("attempt %d: Invoke() = %q, want %q", i, obs.Content, "try another tool")
		}
	}
}

func TestInvokerTranscript(t *testing.T) {
	memory := NewMemoryStore()
	registry := NewRegistry()
	if err := registry.Register(newCalculator(t)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	inv := NewInvoker(registry, WithMemory(memory))

	ctx := context.Background()
	if _, err := inv.Invoke(ctx, "Calculator", StringInput("3**2")); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	last, ok := inv.LastObservation(ctx, "Calculator")
	if !ok {
		t.Fatal("LastObservation() not found after invocation")
	}
	if last.Observation != "9" {
		t.Errorf("LastObservation() = %q, want %q", last.Observation, "9")
	}
	if last.Recovered {
		t.Error("LastObservation() Recovered = true, want false")
	}

	if _, ok := inv.LastObservation(ctx, "never-invoked"); ok {
		t.Error("LastObservation(never-invoked) found = true, want false")
	}
}

func TestInvokerTranscriptDistinguishesRecovered(t *testing.T) {
	memory := NewMemoryStore()
	registry := NewRegistry()
	if err := registry.Register(newFailingSearch(t)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	inv := NewInvoker(registry, WithMemory(memory))

	ctx := context.Background()
	if _, err := inv.Invoke(ctx, "Search_tool1", StringInput("q")); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	last, ok := inv.LastObservation(ctx, "Search_tool1")
	if !ok {
		t.Fatal("LastObservation() not found after invocation")
	}
	if !last.Recovered {
		t.Error("transcript entry Recovered = false, want true")
	}
	if last.Error == nil || last.Error.Code != "BACKEND_DOWN" {
		t.Errorf("transcript entry Error = %+v, want original signal", last.Error)
	}
}
