package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
)

func newTestDetector() *Detector {
	return NewDetector(nil, nil, capability.NewBuiltinRegistry(), zerolog.Nop())
}

func TestDetector_Detect_ECSClusterIntent(t *testing.T) {
	d := newTestDetector()

	det := d.Detect("Deploy ECS cluster with RDS and load balancer")

	want := map[string]bool{"ecs": true, "rds": true, "elb": true}
	if len(det.Capabilities) != len(want) {
		t.Fatalf("Expected %d capabilities, got %d: %v", len(want), len(det.Capabilities), det.CapabilityNames())
	}
	for _, c := range det.Capabilities {
		if !want[c.Name] {
			t.Errorf("Unexpected capability %s", c.Name)
		}
		if c.Confidence <= 0 || c.Confidence > 1 {
			t.Errorf("Capability %s confidence out of range: %f", c.Name, c.Confidence)
		}
		if len(c.MatchedKeywords) == 0 {
			t.Errorf("Capability %s has no matched keywords", c.Name)
		}
	}
}

func TestDetector_Detect_DomainsFromRegistry(t *testing.T) {
	d := newTestDetector()

	det := d.Detect("Deploy ECS cluster with RDS and load balancer")

	domains := make(map[string]capability.Domain)
	for _, c := range det.Capabilities {
		domains[c.Name] = c.Domain
	}

	if domains["ecs"] != capability.DomainCompute {
		t.Errorf("Expected ecs in compute domain, got %s", domains["ecs"])
	}
	if domains["rds"] != capability.DomainData {
		t.Errorf("Expected rds in data domain, got %s", domains["rds"])
	}
	if domains["elb"] != capability.DomainNetworking {
		t.Errorf("Expected elb in networking domain, got %s", domains["elb"])
	}
}

func TestDetector_Detect_NoMatches(t *testing.T) {
	d := newTestDetector()

	det := d.Detect("hello there")
	if !det.Empty() {
		t.Errorf("Expected empty detection, got capabilities=%v patterns=%v",
			det.CapabilityNames(), det.Patterns)
	}
}

func TestDetector_Detect_EmptyInput(t *testing.T) {
	d := newTestDetector()

	for _, text := range []string{"", "   ", "\t\n"} {
		if det := d.Detect(text); !det.Empty() {
			t.Errorf("Expected empty detection for %q", text)
		}
	}
}

func TestDetector_Detect_Patterns(t *testing.T) {
	d := newTestDetector()

	det := d.Detect("Build a serverless microservices platform with lambda")

	patterns := make(map[string]bool)
	for _, p := range det.Patterns {
		patterns[p.Name] = true
		if p.Confidence <= 0 || p.Confidence > 1 {
			t.Errorf("Pattern %s confidence out of range: %f", p.Name, p.Confidence)
		}
	}

	if !patterns["serverless"] {
		t.Error("Expected serverless pattern")
	}
	if !patterns["microservices"] {
		t.Error("Expected microservices pattern")
	}
}

func TestDetector_Detect_ConfidenceRatio(t *testing.T) {
	table := &Table{
		Capabilities: map[string][]string{
			"ecs": {"ecs", "container", "docker", "fargate"},
		},
	}
	d := NewDetector(table, nil, capability.NewBuiltinRegistry(), zerolog.Nop())

	det := d.Detect("run my docker container on ecs")
	if len(det.Capabilities) != 1 {
		t.Fatalf("Expected 1 capability, got %d", len(det.Capabilities))
	}

	// 3 of 4 keywords present.
	if got, want := det.Capabilities[0].Confidence, 0.75; got != want {
		t.Errorf("Expected confidence %f, got %f", want, got)
	}
}

func TestDetector_InferDependencies(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name     string
		detected []string
		want     []string
	}{
		{
			name:     "compute infers vpc and iam",
			detected: []string{"ecs", "rds", "elb"},
			want:     []string{"iam", "vpc"},
		},
		{
			name:     "wildcard baseline iam",
			detected: []string{"s3"},
			want:     []string{"iam"},
		},
		{
			name:     "already detected not re-inferred",
			detected: []string{"vpc", "iam", "ecs"},
			want:     nil,
		},
		{
			name:     "empty detection infers nothing",
			detected: nil,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := make([]Capability, len(tt.detected))
			for i, id := range tt.detected {
				caps[i] = Capability{Name: id, Confidence: 1}
			}

			got := d.InferDependencies(caps)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Position %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestDetector_DomainPriority(t *testing.T) {
	d := newTestDetector()

	caps := []Capability{
		{Name: "ecs", Domain: capability.DomainCompute},
		{Name: "vpc", Domain: capability.DomainFoundation},
		{Name: "custom", Domain: capability.Domain("edge")},
		{Name: "rds", Domain: capability.DomainData},
	}

	got := d.DomainPriority(caps)
	want := []capability.Domain{
		capability.DomainFoundation,
		capability.DomainData,
		capability.DomainCompute,
		capability.Domain("edge"),
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDetector_SwapTable(t *testing.T) {
	d := newTestDetector()

	table := &Table{
		Capabilities: map[string][]string{"ecs": {"shipit"}},
	}
	if err := d.SwapTable(table); err != nil {
		t.Fatalf("SwapTable failed: %v", err)
	}

	if det := d.Detect("shipit now"); len(det.Capabilities) != 1 {
		t.Errorf("Expected detection from swapped table, got %v", det.CapabilityNames())
	}
	if det := d.Detect("deploy ecs"); !det.Empty() {
		t.Error("Old table still in effect after swap")
	}
}

func TestDetector_SwapTable_Invalid(t *testing.T) {
	d := newTestDetector()

	bad := &Table{Capabilities: map[string][]string{"ecs": {}}}
	if err := d.SwapTable(bad); err == nil {
		t.Fatal("Expected error swapping invalid table")
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")

	content := []byte(`
capabilities:
  ecs: ["ecs", "container"]
patterns:
  serverless: ["serverless"]
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write table file: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if len(table.Capabilities["ecs"]) != 2 {
		t.Errorf("Expected 2 ecs keywords, got %d", len(table.Capabilities["ecs"]))
	}
	if len(table.Patterns["serverless"]) != 1 {
		t.Errorf("Expected 1 serverless keyword, got %d", len(table.Patterns["serverless"]))
	}
}

func TestLoadTable_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")

	if err := os.WriteFile(path, []byte("capabilities:\n  ecs: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write table file: %v", err)
	}

	if _, err := LoadTable(path); err == nil {
		t.Fatal("Expected error for capability with no keywords")
	}
}
