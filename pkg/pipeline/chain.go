package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// DefaultStageTimeout bounds a single stage execution.
const DefaultStageTimeout = 10 * time.Second

// Options configures a Chain.
type Options struct {
	// StageTimeout bounds each stage. Zero means DefaultStageTimeout.
	StageTimeout time.Duration

	// LegacyBypass skips the chain in favor of a single legacy call.
	LegacyBypass bool

	// Legacy is the fallback call used when LegacyBypass is set.
	// Optional; a nil Legacy bypass produces an empty completed outcome.
	Legacy func(ctx context.Context, intent string) (string, error)

	// Audit receives one fire-and-forget entry per run. Optional.
	Audit stores.AuditLog

	// Metrics receives stage counters and breaker state. Optional.
	Metrics *telemetry.Metrics
}

// Chain executes the fixed pipeline stages against the configured
// collaborators. Any collaborator may be nil; its stage then degrades
// to the declared fallback value.
type Chain struct {
	breaker   *CircuitBreaker
	validator SafetyValidator
	estimator CostEstimator
	builder   ChangeBuilder
	publisher Publisher

	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	audit        stores.AuditLog
	stageTimeout time.Duration
	legacyBypass bool
	legacy       func(ctx context.Context, intent string) (string, error)
}

// NewChain creates a chain. The breaker is required; every other
// collaborator is optional.
func NewChain(
	breaker *CircuitBreaker,
	validator SafetyValidator,
	estimator CostEstimator,
	builder ChangeBuilder,
	publisher Publisher,
	logger zerolog.Logger,
	opts Options,
) *Chain {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return &Chain{
		breaker:      breaker,
		validator:    validator,
		estimator:    estimator,
		builder:      builder,
		publisher:    publisher,
		logger:       logger.With().Str("component", "pipeline").Logger(),
		metrics:      opts.Metrics,
		audit:        opts.Audit,
		stageTimeout: opts.StageTimeout,
		legacyBypass: opts.LegacyBypass,
		legacy:       opts.Legacy,
	}
}

// Run executes the chain for one intent and feeds the outcome back
// into the circuit breaker. The error return is reserved for context
// cancellation; gate refusals come back as a Blocked outcome.
func (c *Chain) Run(ctx context.Context, intent string) (*Outcome, error) {
	start := time.Now()

	if c.legacyBypass {
		return c.runLegacy(ctx, intent, start)
	}

	outcome := &Outcome{Status: StatusCompleted}

	// CircuitCheck. An open breaker skips everything, validation included.
	if open, retryAfter := c.breaker.State(); open {
		c.metrics.SetBreakerOpen(true)
		outcome.Status = StatusBlocked
		outcome.RetryAfter = retryAfter
		outcome.Rationale = fmt.Sprintf("circuit breaker open, retry after %s", retryAfter.Round(time.Second))
		c.recordStage(outcome, StageCircuitCheck, StageBlocked, outcome.Rationale)
		c.skipRemaining(outcome, StageIntentValidation)
		outcome.Elapsed = time.Since(start)
		c.auditRun(intent, outcome)
		return outcome, nil
	}
	c.metrics.SetBreakerOpen(false)
	c.recordStage(outcome, StageCircuitCheck, StageOK, "breaker closed")

	// IntentValidation.
	verdict := c.runValidation(ctx, intent, outcome)
	outcome.Rationale = verdict.Rationale
	if !verdict.Safe {
		outcome.Status = StatusBlocked
		c.skipRemaining(outcome, StageCostGuardrail)
		outcome.Elapsed = time.Since(start)
		c.auditRun(intent, outcome)
		return outcome, nil
	}

	// CostGuardrail.
	decision := c.runCost(ctx, intent, outcome)
	outcome.Cost = decision
	if decision.ShouldBlock {
		outcome.Status = StatusBlocked
		outcome.Rationale = decision.Reason
		c.skipRemaining(outcome, StageChangeBuild)
		outcome.Elapsed = time.Since(start)
		c.auditRun(intent, outcome)
		return outcome, nil
	}

	// ChangeBuild.
	outcome.Changes = c.runBuild(ctx, intent, outcome)

	// ChangePublish.
	outcome.PublishedURL = c.runPublish(ctx, outcome)

	c.recordBreakerOutcome(outcome)
	outcome.Elapsed = time.Since(start)
	c.auditRun(intent, outcome)
	return outcome, ctx.Err()
}

// recordBreakerOutcome feeds a finished run back into the breaker.
// Degraded runs count as failures; clean completions reset the failure
// window. Gate refusals are deliberate verdicts about the intent, not
// process failures, and leave the breaker untouched.
func (c *Chain) recordBreakerOutcome(outcome *Outcome) {
	if outcome.Status != StatusCompleted {
		return
	}
	for _, rec := range outcome.Stages {
		if rec.Status == StageFallback {
			c.breaker.RecordFailure()
			return
		}
	}
	c.breaker.RecordSuccess()
}

// runLegacy short-circuits the whole chain with one fallback call.
func (c *Chain) runLegacy(ctx context.Context, intent string, start time.Time) (*Outcome, error) {
	outcome := &Outcome{
		Status:    StatusCompleted,
		Rationale: "legacy compatibility mode, stage chain bypassed",
	}
	outcome.Warnings = append(outcome.Warnings, "pipeline bypassed by legacy compatibility flag")

	if c.legacy != nil {
		url, err := c.legacy(ctx, intent)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("legacy call failed: %v", err))
			c.breaker.RecordFailure()
		} else {
			outcome.PublishedURL = url
			c.breaker.RecordSuccess()
		}
	}

	outcome.Elapsed = time.Since(start)
	c.auditRun(intent, outcome)
	return outcome, nil
}

func (c *Chain) runValidation(ctx context.Context, intent string, outcome *Outcome) *SafetyVerdict {
	fallback := &SafetyVerdict{Safe: true, Rationale: "validation unavailable, intent assumed safe"}
	if c.validator == nil {
		c.recordFallback(outcome, StageIntentValidation, "no safety validator configured")
		return fallback
	}

	verdict, err := execStage(ctx, c.stageTimeout, func(sctx context.Context) (*SafetyVerdict, error) {
		return c.validator.Validate(sctx, intent)
	})
	if err != nil || verdict == nil {
		c.recordFallback(outcome, StageIntentValidation, stageFailureDetail(err))
		return fallback
	}
	status := StageOK
	if !verdict.Safe {
		status = StageBlocked
	}
	c.recordStage(outcome, StageIntentValidation, status, verdict.Rationale)
	return verdict
}

func (c *Chain) runCost(ctx context.Context, intent string, outcome *Outcome) *CostDecision {
	fallback := &CostDecision{Reason: "cost estimate unavailable"}
	if c.estimator == nil {
		c.recordFallback(outcome, StageCostGuardrail, "no cost estimator configured")
		return fallback
	}

	decision, err := execStage(ctx, c.stageTimeout, func(sctx context.Context) (*CostDecision, error) {
		return c.estimator.Estimate(sctx, intent)
	})
	if err != nil || decision == nil {
		c.recordFallback(outcome, StageCostGuardrail, stageFailureDetail(err))
		return fallback
	}
	status := StageOK
	if decision.ShouldBlock {
		status = StageBlocked
	}
	c.recordStage(outcome, StageCostGuardrail, status, decision.Reason)
	return decision
}

func (c *Chain) runBuild(ctx context.Context, intent string, outcome *Outcome) *ChangeSet {
	fallback := &ChangeSet{Intent: intent, CreatedAt: time.Now()}
	if c.builder == nil {
		c.recordFallback(outcome, StageChangeBuild, "no change builder configured")
		return fallback
	}

	changes, err := execStage(ctx, c.stageTimeout, func(sctx context.Context) (*ChangeSet, error) {
		return c.builder.Build(sctx, intent)
	})
	if err != nil || changes == nil {
		c.recordFallback(outcome, StageChangeBuild, stageFailureDetail(err))
		return fallback
	}
	c.recordStage(outcome, StageChangeBuild, StageOK, fmt.Sprintf("%d artifacts", len(changes.Artifacts)))
	return changes
}

func (c *Chain) runPublish(ctx context.Context, outcome *Outcome) string {
	if c.publisher == nil {
		c.recordFallback(outcome, StageChangePublish, "no publisher configured")
		return ""
	}

	result, err := execStage(ctx, c.stageTimeout, func(sctx context.Context) (*PublishResult, error) {
		return c.publisher.Publish(sctx, outcome.Changes, outcome.Rationale, outcome.Cost)
	})
	if err != nil || result == nil {
		c.recordFallback(outcome, StageChangePublish, stageFailureDetail(err))
		return ""
	}
	c.recordStage(outcome, StageChangePublish, StageOK, result.URL)
	return result.URL
}

// execStage runs fn bounded by the stage timeout. On timeout the call
// is abandoned and a timeout error returned.
func execStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(sctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-sctx.Done():
		var zero T
		return zero, sctx.Err()
	}
}

func stageFailureDetail(err error) string {
	if err == nil {
		return "stage returned no value"
	}
	return err.Error()
}

func (c *Chain) recordStage(outcome *Outcome, stage Stage, status StageStatus, detail string) {
	outcome.Stages = append(outcome.Stages, StageRecord{Stage: stage, Status: status, Detail: detail})
	c.metrics.RecordPipelineStage(string(stage), string(status))
}

func (c *Chain) recordFallback(outcome *Outcome, stage Stage, detail string) {
	c.logger.Warn().Str("stage", string(stage)).Str("detail", detail).Msg("stage degraded to fallback")
	outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s: %s", stage, detail))
	c.recordStage(outcome, stage, StageFallback, detail)
}

// skipRemaining marks every stage from the given one onwards as skipped.
func (c *Chain) skipRemaining(outcome *Outcome, from Stage) {
	skipping := false
	for _, stage := range Stages() {
		if stage == from {
			skipping = true
		}
		if skipping {
			c.recordStage(outcome, stage, StageSkipped, "")
		}
	}
}

// auditRun appends one fire-and-forget audit entry; audit failures are
// logged and never affect the outcome.
func (c *Chain) auditRun(intent string, outcome *Outcome) {
	if c.audit == nil {
		return
	}

	entry := &stores.AuditEntry{
		Phase:     "pipeline",
		Actor:     "pipeline-chain",
		Action:    intent,
		Rationale: outcome.Rationale,
		Status:    string(outcome.Status),
		Timestamp: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.audit.Append(ctx, entry); err != nil {
			c.logger.Warn().Err(err).Msg("audit append failed")
		}
	}()
}

// Breaker exposes the chain's circuit breaker for outcome reporting.
func (c *Chain) Breaker() *CircuitBreaker {
	return c.breaker
}
