package sim

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

func ecsDescriptor() capability.Descriptor {
	return capability.Descriptor{
		ID:          "ecs",
		Domain:      capability.DomainCompute,
		Priority:    65,
		LoadTimeout: time.Minute,
	}
}

// memState is an in-memory StateStore.
type memState struct {
	records map[string]*stores.ResourceState
	putErr  error
}

func newMemState() *memState {
	return &memState{records: make(map[string]*stores.ResourceState)}
}

func (m *memState) Put(ctx context.Context, record *stores.ResourceState) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[record.ResourceName] = record
	return nil
}

func (m *memState) Scan(ctx context.Context, project string) ([]stores.ResourceState, error) {
	var out []stores.ResourceState
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memState) Delete(ctx context.Context, project, resourceName string) error {
	delete(m.records, resourceName)
	return nil
}

func TestApplyRecordsState(t *testing.T) {
	state := newMemState()
	p := New(ecsDescriptor(), zerolog.Nop(), Options{State: state, Project: "demo"})

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	result, err := p.Call(context.Background(), "apply", map[string]any{"phase": "compute"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.Error)
	}

	var output map[string]string
	if err := json.Unmarshal(result.Output, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output["resource"] != "ecs-main" || output["status"] != "created" {
		t.Errorf("unexpected output: %v", output)
	}

	record, ok := state.records["ecs-main"]
	if !ok {
		t.Fatal("expected a state record")
	}
	if record.Project != "demo" || record.ResourceType != "ecs" || record.Phase != "compute" {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestDestroyRemovesState(t *testing.T) {
	state := newMemState()
	p := New(ecsDescriptor(), zerolog.Nop(), Options{State: state})

	if _, err := p.Call(context.Background(), "apply", nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := p.Call(context.Background(), "destroy", nil); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(state.records) != 0 {
		t.Errorf("expected state cleared, got %v", state.records)
	}
}

func TestInjectedLoadFailure(t *testing.T) {
	p := New(ecsDescriptor(), zerolog.Nop(), Options{LoadErr: errors.New("credentials expired")})

	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected load failure")
	}
}

func TestInjectedOperationFailure(t *testing.T) {
	p := New(ecsDescriptor(), zerolog.Nop(), Options{
		FailOperations: map[string]string{"apply": "capacity exhausted"},
	})

	result, err := p.Call(context.Background(), "apply", nil)
	if err != nil {
		t.Fatalf("injected failures must not be transport errors: %v", err)
	}
	if result.Success || result.Error != "capacity exhausted" {
		t.Errorf("expected unsuccessful result, got %+v", result)
	}
}

func TestUnknownOperation(t *testing.T) {
	p := New(ecsDescriptor(), zerolog.Nop(), Options{})

	if _, err := p.Call(context.Background(), "reboot", nil); err == nil {
		t.Error("expected unknown operation error")
	}
}

func TestLoadHonorsContext(t *testing.T) {
	p := New(ecsDescriptor(), zerolog.Nop(), Options{Warmup: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Load(ctx)
	if err == nil {
		t.Fatal("expected context cancellation")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("load must abort promptly on cancellation")
	}
}

func TestBindAll(t *testing.T) {
	registry := capability.NewBuiltinRegistry()

	if err := BindAll(registry, zerolog.Nop(), Options{}); err != nil {
		t.Fatalf("bind all: %v", err)
	}
	for _, desc := range registry.List() {
		if _, ok := registry.Provider(desc.ID); !ok {
			t.Errorf("capability %s left unbound", desc.ID)
		}
	}
}
