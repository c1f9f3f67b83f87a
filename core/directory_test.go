package core

import (
	"context"
	"errors"
	"testing"
)

func TestMockDirectory(t *testing.T) {
	dir := NewMockDirectory()
	ctx := context.Background()

	info := &ServiceInfo{
		ID:   "svc-1",
		Name: "calc-service",
		Capabilities: []CapabilitySummary{
			{Name: "Calculator"},
		},
	}
	if err := dir.Announce(ctx, info); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}

	found, err := dir.FindByCapability(ctx, "Calculator")
	if err != nil {
		t.Fatalf("FindByCapability() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != "svc-1" {
		t.Errorf("FindByCapability() = %+v", found)
	}
	if found[0].Health != HealthHealthy {
		t.Errorf("Health = %q, want defaulted to healthy", found[0].Health)
	}

	if err := dir.UpdateHealth(ctx, "svc-1", HealthUnhealthy); err != nil {
		t.Fatalf("UpdateHealth() error = %v", err)
	}
	found, _ = dir.FindService(ctx, "calc-service")
	if len(found) != 1 || found[0].Health != HealthUnhealthy {
		t.Errorf("FindService() = %+v", found)
	}

	if err := dir.Withdraw(ctx, "svc-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	found, _ = dir.FindByCapability(ctx, "Calculator")
	if len(found) != 0 {
		t.Error("service still present after withdrawal")
	}
}

func TestMockDirectoryValidation(t *testing.T) {
	dir := NewMockDirectory()
	ctx := context.Background()

	if err := dir.Announce(ctx, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Announce(nil) error = %v", err)
	}
	if err := dir.Announce(ctx, &ServiceInfo{Name: "no-id"}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Announce(no id) error = %v", err)
	}
	if err := dir.UpdateHealth(ctx, "ghost", HealthHealthy); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("UpdateHealth(ghost) error = %v", err)
	}
}

func TestMockDirectoryReturnsCopies(t *testing.T) {
	dir := NewMockDirectory()
	ctx := context.Background()

	if err := dir.Announce(ctx, &ServiceInfo{ID: "svc-1", Name: "svc"}); err != nil {
		t.Fatal(err)
	}

	found, _ := dir.FindService(ctx, "svc")
	found[0].Name = "mutated"

	again, _ := dir.FindService(ctx, "svc")
	if len(again) != 1 || again[0].Name != "svc" {
		t.Error("directory state mutated through a returned copy")
	}
}
