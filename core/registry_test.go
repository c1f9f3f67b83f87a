package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func echoCapability(name string) *Capability {
	return &Capability{
		Name:        name,
		Description: "echoes its input",
		Handler: func(ctx context.Context, input Input) (string, error) {
			return input.Raw, nil
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	cap := echoCapability("echo")
	if err := registry.Register(cap); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	resolved, err := registry.Resolve("echo")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved != cap {
		t.Error("Resolve() returned a different descriptor")
	}
}

func TestRegistryEndpointGeneration(t *testing.T) {
	registry := NewRegistry()

	plain := echoCapability("plain")
	if err := registry.Register(plain); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if plain.Endpoint != "/api/capabilities/plain" {
		t.Errorf("Endpoint = %q, want auto-generated path", plain.Endpoint)
	}
	if plain.SchemaEndpoint != "" {
		t.Errorf("SchemaEndpoint = %q, want empty for schemaless capability", plain.SchemaEndpoint)
	}

	structured := echoCapability("structured")
	structured.InputSchema = &Schema{
		RequiredFields: []FieldSpec{{Name: "q", Type: "string"}},
	}
	if err := registry.Register(structured); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if structured.SchemaEndpoint != "/api/capabilities/structured/schema" {
		t.Errorf("SchemaEndpoint = %q, want auto-generated schema path", structured.SchemaEndpoint)
	}
}

func TestRegistryDuplicateFails(t *testing.T) {
	registry := NewRegistry()

	first := echoCapability("dup")
	if err := registry.Register(first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Re-registration fails deterministically and never overwrites
	for i := 0; i < 3; i++ {
		err := registry.Register(echoCapability("dup"))
		if !errors.Is(err, ErrDuplicateCapability) {
			t.Fatalf("attempt %d: Register(dup) error = %v, want ErrDuplicateCapability", i, err)
		}
	}

	resolved, err := registry.Resolve("dup")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved != first {
		t.Error("duplicate registration replaced the original descriptor")
	}
}

func TestRegistryInvalidCapability(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name string
		cap  *Capability
	}{
		{"nil descriptor", nil},
		{"empty name", &Capability{Handler: func(ctx context.Context, in Input) (string, error) { return "", nil }}},
		{"whitespace name", &Capability{Name: "   ", Handler: func(ctx context.Context, in Input) (string, error) { return "", nil }}},
		{"nil handler", &Capability{Name: "no-handler"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.cap)
			if !errors.Is(err, ErrInvalidCapability) {
				t.Errorf("Register() error = %v, want ErrInvalidCapability", err)
			}
		})
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve("ghost")
	if !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Resolve(ghost) error = %v, want ErrUnknownCapability", err)
	}

	var fwErr *FrameworkError
	if !errors.As(err, &fwErr) {
		t.Fatalf("Resolve(ghost) error = %T, want *FrameworkError", err)
	}
	if fwErr.ID != "ghost" {
		t.Errorf("FrameworkError.ID = %q, want %q", fwErr.ID, "ghost")
	}
}

func TestRegistryListSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := registry.Register(echoCapability(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := registry.Names()
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	caps := registry.List()
	for i := range want {
		if caps[i].Name != want[i] {
			t.Errorf("List()[%d].Name = %q, want %q", i, caps[i].Name, want[i])
		}
	}
}

func TestRegistryDeregister(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoCapability("doomed")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := registry.Deregister("doomed"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if _, err := registry.Resolve("doomed"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Resolve() after Deregister error = %v, want ErrUnknownCapability", err)
	}

	// The name is free again
	if err := registry.Register(echoCapability("doomed")); err != nil {
		t.Errorf("re-Register() error = %v", err)
	}

	if err := registry.Deregister("ghost"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Deregister(ghost) error = %v, want ErrUnknownCapability", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoCapability("shared")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Register(echoCapability(fmt.Sprintf("cap-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			if _, err := registry.Resolve("shared"); err != nil {
				t.Errorf("Resolve(shared) error = %v", err)
			}
		}()
	}
	wg.Wait()

	if registry.Len() != 11 {
		t.Errorf("Len() = %d, want 11", registry.Len())
	}
}
