// Package pipeline runs the fixed change-management stage chain:
// CircuitCheck, IntentValidation, CostGuardrail, ChangeBuild,
// ChangePublish. Stages degrade to declared fallback values on failure;
// only the three hard gates (open breaker, unsafe intent, cost block)
// terminate the chain.
package pipeline

import (
	"context"
	"time"
)

// Stage names the fixed pipeline stages in execution order.
type Stage string

const (
	// StageCircuitCheck consults the circuit breaker before anything else.
	StageCircuitCheck Stage = "circuit_check"

	// StageIntentValidation runs the safety validator.
	StageIntentValidation Stage = "intent_validation"

	// StageCostGuardrail runs the cost estimator and budget check.
	StageCostGuardrail Stage = "cost_guardrail"

	// StageChangeBuild generates the change artifacts.
	StageChangeBuild Stage = "change_build"

	// StageChangePublish publishes the change for review.
	StageChangePublish Stage = "change_publish"
)

// Stages returns the fixed stage order.
func Stages() []Stage {
	return []Stage{
		StageCircuitCheck,
		StageIntentValidation,
		StageCostGuardrail,
		StageChangeBuild,
		StageChangePublish,
	}
}

// StageStatus describes how one stage concluded.
type StageStatus string

const (
	// StageOK means the stage produced its real value.
	StageOK StageStatus = "ok"

	// StageFallback means the stage failed or timed out and its fallback
	// value was used.
	StageFallback StageStatus = "fallback"

	// StageBlocked means the stage tripped a hard gate.
	StageBlocked StageStatus = "blocked"

	// StageSkipped means the stage never ran because an earlier gate
	// terminated the chain.
	StageSkipped StageStatus = "skipped"
)

// StageRecord is the per-stage entry in the outcome.
type StageRecord struct {
	// Stage is the stage name.
	Stage Stage `json:"stage"`

	// Status is how the stage concluded.
	Status StageStatus `json:"status"`

	// Detail is a short human-readable note.
	Detail string `json:"detail,omitempty"`
}

// Status is the aggregate outcome of one chain run.
type Status string

const (
	// StatusCompleted means the chain ran to the end.
	StatusCompleted Status = "completed"

	// StatusBlocked means a hard gate terminated the chain.
	StatusBlocked Status = "blocked"
)

// SafetyVerdict is the intent validation result.
type SafetyVerdict struct {
	// Safe is false when the intent must not proceed.
	Safe bool `json:"safe"`

	// Rationale explains the verdict.
	Rationale string `json:"rationale"`
}

// CostDecision is the cost guardrail result.
type CostDecision struct {
	// MonthlyUSD is the estimated monthly cost in USD.
	MonthlyUSD float64 `json:"monthly_usd"`

	// ShouldBlock is true when the estimate exceeds the budget.
	ShouldBlock bool `json:"should_block"`

	// Reason explains the decision.
	Reason string `json:"reason"`
}

// Artifact is one generated change file.
type Artifact struct {
	// Name is the artifact file name.
	Name string `json:"name"`

	// Content is the artifact body.
	Content string `json:"content"`
}

// ChangeSet is the set of artifacts generated for one intent.
type ChangeSet struct {
	// ID is the unique change set identifier.
	ID string `json:"id"`

	// Intent is the originating intent text.
	Intent string `json:"intent"`

	// Artifacts holds the generated files.
	Artifacts []Artifact `json:"artifacts"`

	// CreatedAt is when the change set was built.
	CreatedAt time.Time `json:"created_at"`
}

// PublishResult is the change publisher result.
type PublishResult struct {
	// URL references the published change.
	URL string `json:"url"`
}

// Outcome aggregates the chain run.
type Outcome struct {
	// Status is completed or blocked.
	Status Status `json:"status"`

	// RetryAfter is set when the breaker blocked the run.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Rationale is the validation rationale, or the gate reason when
	// blocked.
	Rationale string `json:"rationale"`

	// Cost is the guardrail decision, when that stage ran.
	Cost *CostDecision `json:"cost,omitempty"`

	// Changes is the generated change set, when that stage ran.
	Changes *ChangeSet `json:"changes,omitempty"`

	// PublishedURL references the published change, when available.
	PublishedURL string `json:"published_url,omitempty"`

	// Warnings lists the fallback notes accumulated across stages.
	Warnings []string `json:"warnings,omitempty"`

	// Stages records every stage with its status.
	Stages []StageRecord `json:"stages"`

	// Elapsed is the wall-clock time of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// Blocked reports whether a hard gate terminated the run.
func (o *Outcome) Blocked() bool {
	return o.Status == StatusBlocked
}

// StageRecordFor returns the record for the named stage, or nil.
func (o *Outcome) StageRecordFor(stage Stage) *StageRecord {
	for i := range o.Stages {
		if o.Stages[i].Stage == stage {
			return &o.Stages[i]
		}
	}
	return nil
}

// SafetyValidator validates intent safety.
type SafetyValidator interface {
	Validate(ctx context.Context, intent string) (*SafetyVerdict, error)
}

// CostEstimator estimates intent cost and applies the budget.
type CostEstimator interface {
	Estimate(ctx context.Context, intent string) (*CostDecision, error)
}

// ChangeBuilder generates change artifacts for an intent.
type ChangeBuilder interface {
	Build(ctx context.Context, intent string) (*ChangeSet, error)
}

// Publisher publishes a change set for review.
type Publisher interface {
	Publish(ctx context.Context, changes *ChangeSet, rationale string, cost *CostDecision) (*PublishResult, error)
}
