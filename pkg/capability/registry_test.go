package capability

import (
	"context"
	"testing"
	"time"
)

type nopProvider struct{}

func (nopProvider) Load(ctx context.Context) error { return nil }

func (nopProvider) Call(ctx context.Context, operation string, args map[string]any) (*CallResult, error) {
	return &CallResult{Success: true}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	desc := Descriptor{ID: "ecs", Domain: DomainCompute, Priority: 65, LoadTimeout: time.Minute}
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("ecs")
	if !ok {
		t.Fatal("Expected descriptor for ecs")
	}
	if got.Domain != DomainCompute {
		t.Errorf("Expected domain %s, got %s", DomainCompute, got.Domain)
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()

	desc := Descriptor{ID: "ecs", Domain: DomainCompute}
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Register(desc); err == nil {
		t.Fatal("Expected error registering duplicate descriptor")
	}
}

func TestRegistry_Register_MissingFields(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Descriptor{Domain: DomainCompute}); err == nil {
		t.Error("Expected error for missing ID")
	}
	if err := r.Register(Descriptor{ID: "ecs"}); err == nil {
		t.Error("Expected error for missing domain")
	}
}

func TestRegistry_Bind(t *testing.T) {
	r := NewRegistry()

	if err := r.Bind("missing", nopProvider{}); err == nil {
		t.Fatal("Expected error binding to unregistered capability")
	}

	if err := r.Register(Descriptor{ID: "rds", Domain: DomainData}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Bind("rds", nopProvider{}); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	if _, ok := r.Provider("rds"); !ok {
		t.Error("Expected provider bound to rds")
	}
}

func TestRegistry_List_Ordering(t *testing.T) {
	r := NewRegistry()

	descs := []Descriptor{
		{ID: "lambda", Domain: DomainCompute, Priority: 70},
		{ID: "vpc", Domain: DomainFoundation, Priority: 10},
		{ID: "iam", Domain: DomainSecurity, Priority: 20},
	}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register %s failed: %v", d.ID, err)
		}
	}

	list := r.List()
	want := []string{"vpc", "iam", "lambda"}
	if len(list) != len(want) {
		t.Fatalf("Expected %d descriptors, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r := NewBuiltinRegistry()

	if r.Len() != len(BuiltinDescriptors()) {
		t.Errorf("Expected %d builtin descriptors, got %d", len(BuiltinDescriptors()), r.Len())
	}

	for _, id := range []string{"vpc", "iam", "ecs", "rds", "elb"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("Expected builtin capability %s", id)
		}
	}
}
