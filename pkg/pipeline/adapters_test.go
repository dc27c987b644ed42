package pipeline

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/cost"
	"github.com/stackpilot/stackpilot/pkg/detect"
	"github.com/stackpilot/stackpilot/pkg/policy"
	"github.com/stackpilot/stackpilot/pkg/resolve"
)

func setupResolution(t *testing.T) (*detect.Detector, *resolve.Mapper) {
	t.Helper()
	registry := capability.NewBuiltinRegistry()
	detector := detect.NewDetector(detect.BuiltinTable(), detect.DefaultInferenceRules(), registry, zerolog.Nop())
	mapper := resolve.NewMapper(registry, resolve.CoreCapabilities, zerolog.Nop())
	return detector, mapper
}

func TestIntentCostEstimator(t *testing.T) {
	detector, mapper := setupResolution(t)
	estimator := &IntentCostEstimator{
		Detector:  detector,
		Mapper:    mapper,
		Estimator: cost.NewTableEstimator(nil, zerolog.Nop()),
		Guardrail: cost.Guardrail{MonthlyBudgetUSD: 500},
	}

	decision, err := estimator.Estimate(context.Background(), "Deploy ECS cluster with RDS and load balancer")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// vpc 0 + iam 0 + elb 25 + rds 280 + ecs 150
	if math.Abs(decision.MonthlyUSD-455) > 0.001 {
		t.Errorf("expected $455, got $%.2f", decision.MonthlyUSD)
	}
	if decision.ShouldBlock {
		t.Errorf("expected within budget, got %q", decision.Reason)
	}
}

func TestIntentCostEstimatorBlocksOverBudget(t *testing.T) {
	detector, mapper := setupResolution(t)
	estimator := &IntentCostEstimator{
		Detector:  detector,
		Mapper:    mapper,
		Estimator: cost.NewTableEstimator(nil, zerolog.Nop()),
		Guardrail: cost.Guardrail{MonthlyBudgetUSD: 100},
	}

	decision, err := estimator.Estimate(context.Background(), "Deploy ECS cluster with RDS and load balancer")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !decision.ShouldBlock {
		t.Error("expected over-budget intent to block")
	}
}

func TestManifestBuilder(t *testing.T) {
	detector, mapper := setupResolution(t)
	builder := &ManifestBuilder{Detector: detector, Mapper: mapper}

	changes, err := builder.Build(context.Background(), "Deploy ECS cluster with RDS and load balancer")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if changes.ID == "" {
		t.Error("expected a change set ID")
	}
	if len(changes.Artifacts) != 1 || changes.Artifacts[0].Name != "deployment.yaml" {
		t.Fatalf("expected one deployment.yaml artifact, got %+v", changes.Artifacts)
	}

	body := changes.Artifacts[0].Content
	for _, want := range []string{"foundation", "security", "data", "compute", "ecs", "rds", "elb"} {
		if !strings.Contains(body, want) {
			t.Errorf("manifest missing %q:\n%s", want, body)
		}
	}
}

func TestPolicyValidatorAdapter(t *testing.T) {
	v, err := policy.NewValidator(zerolog.Nop())
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	adapter := &PolicyValidator{Validator: v, Environment: "dev"}

	verdict, err := adapter.Validate(context.Background(), "destroy everything")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if verdict.Safe {
		t.Error("expected destructive intent to be unsafe")
	}
}

func TestLocalPublisher(t *testing.T) {
	p := &LocalPublisher{}

	result, err := p.Publish(context.Background(), &ChangeSet{ID: "cs-42"}, "ok", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.URL != "stackpilot://changes/cs-42" {
		t.Errorf("unexpected URL %q", result.URL)
	}

	if _, err := p.Publish(context.Background(), nil, "ok", nil); err == nil {
		t.Error("expected error publishing nil change set")
	}
}
