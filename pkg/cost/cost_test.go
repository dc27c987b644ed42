package cost

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEstimateKnownCapabilities(t *testing.T) {
	e := NewTableEstimator(nil, zerolog.Nop())

	est, err := e.Estimate(context.Background(), []string{"ecs", "rds", "elb", "vpc", "iam"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	// 150 + 280 + 25 + 0 + 0
	if math.Abs(est.MonthlyUSD-455) > 0.001 {
		t.Errorf("expected $455, got $%.2f", est.MonthlyUSD)
	}
	if len(est.Lines) != 5 {
		t.Fatalf("expected 5 line items, got %d", len(est.Lines))
	}

	// Lines are sorted by capability ID.
	for i := 1; i < len(est.Lines); i++ {
		if est.Lines[i-1].Capability >= est.Lines[i].Capability {
			t.Errorf("expected sorted lines, got %v", est.Lines)
		}
	}
}

func TestEstimateUnknownCapability(t *testing.T) {
	e := NewTableEstimator(nil, zerolog.Nop())

	est, err := e.Estimate(context.Background(), []string{"edge-cache"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.MonthlyUSD != DefaultUnknownRate {
		t.Errorf("expected unknown rate $%.2f, got $%.2f", DefaultUnknownRate, est.MonthlyUSD)
	}
}

func TestEstimateEmpty(t *testing.T) {
	e := NewTableEstimator(nil, zerolog.Nop())

	est, err := e.Estimate(context.Background(), nil)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.MonthlyUSD != 0 || len(est.Lines) != 0 {
		t.Errorf("expected empty estimate, got %+v", est)
	}
}

func TestCustomRates(t *testing.T) {
	e := NewTableEstimator(map[string]float64{"ecs": 1}, zerolog.Nop())

	est, err := e.Estimate(context.Background(), []string{"ecs"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.MonthlyUSD != 1 {
		t.Errorf("expected custom rate $1, got $%.2f", est.MonthlyUSD)
	}
}

func TestGuardrailBlocksOverBudget(t *testing.T) {
	g := Guardrail{MonthlyBudgetUSD: 100}

	allowed, reason := g.Check(&Estimate{MonthlyUSD: 455})
	if allowed {
		t.Error("expected over-budget estimate to be blocked")
	}
	if !strings.Contains(reason, "exceeds budget") {
		t.Errorf("expected block reason, got %q", reason)
	}
}

func TestGuardrailAllowsWithinBudget(t *testing.T) {
	g := Guardrail{MonthlyBudgetUSD: 500}

	allowed, reason := g.Check(&Estimate{MonthlyUSD: 455})
	if !allowed {
		t.Errorf("expected within-budget estimate to pass, got %q", reason)
	}
}

func TestGuardrailDisabled(t *testing.T) {
	g := Guardrail{}

	allowed, _ := g.Check(&Estimate{MonthlyUSD: 1e9})
	if !allowed {
		t.Error("zero budget must disable the guardrail")
	}
}
