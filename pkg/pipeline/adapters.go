package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/pkg/cost"
	"github.com/stackpilot/stackpilot/pkg/detect"
	"github.com/stackpilot/stackpilot/pkg/policy"
	"github.com/stackpilot/stackpilot/pkg/resolve"
)

// PolicyValidator adapts the Rego safety validator to the pipeline's
// SafetyValidator interface.
type PolicyValidator struct {
	// Validator is the underlying Rego validator.
	Validator *policy.Validator

	// Environment is passed as evaluation context.
	Environment string
}

// Validate evaluates the intent against the loaded safety policies.
func (p *PolicyValidator) Validate(ctx context.Context, intent string) (*SafetyVerdict, error) {
	verdict, err := p.Validator.Validate(ctx, intent, p.Environment)
	if err != nil {
		return nil, err
	}
	return &SafetyVerdict{Safe: verdict.Safe, Rationale: verdict.Rationale}, nil
}

// IntentCostEstimator adapts the capability cost table to the pipeline's
// CostEstimator interface: detect the intent's capabilities, resolve the
// full set, price it, and apply the budget.
type IntentCostEstimator struct {
	Detector  *detect.Detector
	Mapper    *resolve.Mapper
	Estimator cost.Estimator
	Guardrail cost.Guardrail
}

// Estimate prices the full resolved capability set of the intent.
func (e *IntentCostEstimator) Estimate(ctx context.Context, intent string) (*CostDecision, error) {
	detection := e.Detector.Detect(intent)
	ids := detection.CapabilityNames()
	ids = append(ids, e.Detector.InferDependencies(detection.Capabilities)...)
	descs := e.Mapper.Map(ids)

	resolved := make([]string, 0, len(descs))
	for _, d := range descs {
		resolved = append(resolved, d.ID)
	}

	est, err := e.Estimator.Estimate(ctx, resolved)
	if err != nil {
		return nil, err
	}

	allowed, reason := e.Guardrail.Check(est)
	return &CostDecision{
		MonthlyUSD:  est.MonthlyUSD,
		ShouldBlock: !allowed,
		Reason:      reason,
	}, nil
}

// manifest is the YAML body of a generated change artifact.
type manifest struct {
	Intent       string        `yaml:"intent"`
	GeneratedAt  time.Time     `yaml:"generated_at"`
	Capabilities []string      `yaml:"capabilities"`
	Phases       []phaseRecord `yaml:"phases"`
}

type phaseRecord struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// ManifestBuilder generates a deployment manifest artifact from the
// resolved plan of an intent.
type ManifestBuilder struct {
	Detector *detect.Detector
	Mapper   *resolve.Mapper
}

// Build resolves the intent and renders the phase plan as one YAML
// manifest artifact.
func (b *ManifestBuilder) Build(ctx context.Context, intent string) (*ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detection := b.Detector.Detect(intent)
	ids := detection.CapabilityNames()
	ids = append(ids, b.Detector.InferDependencies(detection.Capabilities)...)
	descs := b.Mapper.Map(ids)
	phases := b.Mapper.DeploymentPhases(descs)

	m := manifest{
		Intent:      intent,
		GeneratedAt: time.Now().UTC(),
	}
	for _, d := range descs {
		m.Capabilities = append(m.Capabilities, d.ID)
	}
	for _, p := range phases {
		rec := phaseRecord{Name: string(p.Name)}
		for _, d := range p.Capabilities {
			rec.Capabilities = append(rec.Capabilities, d.ID)
		}
		m.Phases = append(m.Phases, rec)
	}

	body, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}

	return &ChangeSet{
		ID:     uuid.New().String(),
		Intent: intent,
		Artifacts: []Artifact{
			{Name: "deployment.yaml", Content: string(body)},
		},
		CreatedAt: time.Now(),
	}, nil
}

// LocalPublisher records the change set under a local reference URL.
// It stands in for an external review system (e.g., PR creation).
type LocalPublisher struct {
	// BaseURL prefixes the published reference. Empty means the
	// stackpilot scheme.
	BaseURL string
}

// Publish returns a stable reference for the change set.
func (p *LocalPublisher) Publish(ctx context.Context, changes *ChangeSet, rationale string, costDecision *CostDecision) (*PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if changes == nil || changes.ID == "" {
		return nil, fmt.Errorf("nothing to publish")
	}

	base := p.BaseURL
	if base == "" {
		base = "stackpilot://changes"
	}
	return &PublishResult{URL: strings.TrimRight(base, "/") + "/" + changes.ID}, nil
}
