package resolve

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
)

func newTestMapper() *Mapper {
	return NewMapper(capability.NewBuiltinRegistry(), nil, zerolog.Nop())
}

func TestMapper_Map_CoreAlwaysFirst(t *testing.T) {
	m := newTestMapper()

	tests := []struct {
		name string
		ids  []string
	}{
		{"empty input", nil},
		{"detected set", []string{"ecs", "rds", "elb"}},
		{"core repeated in input", []string{"vpc", "iam", "ecs"}},
		{"duplicates in input", []string{"ecs", "ecs", "rds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Map(tt.ids)

			if len(got) < len(CoreCapabilities) {
				t.Fatalf("Expected at least core set, got %d descriptors", len(got))
			}
			for i, id := range CoreCapabilities {
				if got[i].ID != id {
					t.Errorf("Position %d: expected core capability %s, got %s", i, id, got[i].ID)
				}
			}

			counts := make(map[string]int)
			for _, desc := range got {
				counts[desc.ID]++
			}
			for id, n := range counts {
				if n != 1 {
					t.Errorf("Capability %s appears %d times", id, n)
				}
			}
		})
	}
}

func TestMapper_Map_RemainderByPriority(t *testing.T) {
	m := newTestMapper()

	got := m.Map([]string{"lambda", "elb", "rds"})

	want := []string{"vpc", "iam", "elb", "rds", "lambda"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %d descriptors", want, len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestMapper_Map_UnknownDropped(t *testing.T) {
	m := newTestMapper()

	got := m.Map([]string{"ecs", "quantum-mainframe"})
	for _, desc := range got {
		if desc.ID == "quantum-mainframe" {
			t.Error("Unknown capability survived mapping")
		}
	}
}

func TestMapper_DeploymentPhases_CanonicalOrder(t *testing.T) {
	m := newTestMapper()

	// Insertion order deliberately scrambled.
	descs := m.Map([]string{"ecs", "rds", "elb"})
	for i, j := 0, len(descs)-1; i < j; i, j = i+1, j-1 {
		descs[i], descs[j] = descs[j], descs[i]
	}

	phases := m.DeploymentPhases(descs)

	want := []capability.Domain{
		capability.DomainFoundation,
		capability.DomainSecurity,
		capability.DomainNetworking,
		capability.DomainData,
		capability.DomainCompute,
	}
	if len(phases) != len(want) {
		t.Fatalf("Expected phases %v, got %v", want, phaseNames(phases))
	}
	for i, domain := range want {
		if phases[i].Name != domain {
			t.Errorf("Position %d: expected %s, got %s", i, domain, phases[i].Name)
		}
	}
}

func TestMapper_DeploymentPhases_NoEmptyBuckets(t *testing.T) {
	m := newTestMapper()

	tests := [][]string{
		nil,
		{"s3"},
		{"ecs", "rds", "elb"},
		{"cloudwatch"},
	}

	for _, ids := range tests {
		phases := m.DeploymentPhases(m.Map(ids))
		for _, phase := range phases {
			if len(phase.Capabilities) == 0 {
				t.Errorf("Empty phase bucket %s for input %v", phase.Name, ids)
			}
		}
	}
}

func TestMapper_DeploymentPhases_NoDuplicateIDs(t *testing.T) {
	m := newTestMapper()

	reg := capability.NewBuiltinRegistry()
	ecs, _ := reg.Get("ecs")
	vpc, _ := reg.Get("vpc")
	phases := m.DeploymentPhases([]capability.Descriptor{ecs, vpc, ecs})

	seen := make(map[string]int)
	for _, phase := range phases {
		for _, desc := range phase.Capabilities {
			seen[desc.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Capability %s appears %d times across phases", id, n)
		}
	}
}

func TestPlan_CapabilityCount(t *testing.T) {
	m := newTestMapper()
	phases := m.DeploymentPhases(m.Map([]string{"ecs", "rds", "elb"}))

	plan := &Plan{Phases: phases}
	if got := plan.CapabilityCount(); got != 5 {
		t.Errorf("Expected 5 capabilities, got %d", got)
	}
}

func phaseNames(phases []Phase) []capability.Domain {
	names := make([]capability.Domain, len(phases))
	for i, p := range phases {
		names[i] = p.Name
	}
	return names
}
