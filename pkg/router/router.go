// Package router turns free-text infrastructure intents into routing
// decisions: detect capabilities, resolve the deployment plan, score
// confidence, and either hand off to the execution engine or take the
// fallback path. Decisions are cached with a TTL.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/checkpoint"
	"github.com/stackpilot/stackpilot/pkg/detect"
	"github.com/stackpilot/stackpilot/pkg/engine"
	"github.com/stackpilot/stackpilot/pkg/resolve"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Status classifies a routing decision.
type Status string

const (
	// StatusRouted means the intent was handed to the execution engine.
	StatusRouted Status = "routed"

	// StatusFallback means the intent took the fallback path, either
	// because nothing was detected or because confidence was too low.
	StatusFallback Status = "fallback"

	// StatusErrored means routing or execution failed structurally.
	StatusErrored Status = "errored"
)

// Decision is the cached output of detection plus resolution for one
// intent.
type Decision struct {
	// ID is the unique decision identifier.
	ID string `json:"id"`

	// RequestHash is the cache key of the request.
	RequestHash string `json:"request_hash"`

	// RequestText is the raw intent text the decision was computed from.
	RequestText string `json:"request_text"`

	// Status is routed, fallback or errored.
	Status Status `json:"status"`

	// Confidence is the clamped confidence score.
	Confidence float64 `json:"confidence"`

	// Detected holds the detected capabilities, strongest first.
	Detected []detect.Capability `json:"detected,omitempty"`

	// Patterns holds the detected architectural patterns.
	Patterns []detect.Pattern `json:"patterns,omitempty"`

	// Plan is the resolved phase plan. Nil on the empty-detection path.
	Plan *resolve.Plan `json:"plan,omitempty"`

	// EstimatedDuration is the plan duration estimate.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// Rationale explains the decision.
	Rationale string `json:"rationale"`

	// CreatedAt is when the decision was computed.
	CreatedAt time.Time `json:"created_at"`

	// ProcessingTime is how long detection and resolution took. Cache
	// hits report the original computation time.
	ProcessingTime time.Duration `json:"processing_time"`
}

// Result is the outcome of one routed request.
type Result struct {
	// Decision is the routing decision, freshly computed or cached.
	Decision *Decision `json:"decision"`

	// Cached is true when the decision came from the TTL cache.
	Cached bool `json:"cached"`

	// Execution is the engine result. Nil on the fallback path; the
	// engine is never invoked for fallback decisions.
	Execution *engine.ExecutionResult `json:"execution,omitempty"`

	// FallbackMessage is set on the fallback path.
	FallbackMessage string `json:"fallback_message,omitempty"`

	// Rollback reports the automatic rollback performed after a halted
	// run. Nil unless the run halted and a recovery manager is wired.
	Rollback *checkpoint.RollbackResult `json:"rollback,omitempty"`
}

// Stats is the router's operational snapshot.
type Stats struct {
	// CacheSize is the current number of cached decisions.
	CacheSize int `json:"cache_size"`

	// ActiveProviders is the active-provider table size.
	ActiveProviders int `json:"active_providers"`

	// Routed, Fallback and Errored count requests by outcome.
	Routed   uint64 `json:"routed"`
	Fallback uint64 `json:"fallback"`
	Errored  uint64 `json:"errored"`

	// SuccessRate is routed / total, in [0,1]. Zero when idle.
	SuccessRate float64 `json:"success_rate"`
}

// ConfidenceWeights are the tunable parts of the confidence formula.
type ConfidenceWeights struct {
	// PatternBoost is added per detected pattern.
	PatternBoost float64 `json:"pattern_boost" yaml:"pattern_boost"`

	// LowConfidencePenalty is subtracted per capability below the
	// threshold.
	LowConfidencePenalty float64 `json:"low_confidence_penalty" yaml:"low_confidence_penalty"`

	// LowConfidenceThreshold defines a low-confidence capability.
	LowConfidenceThreshold float64 `json:"low_confidence_threshold" yaml:"low_confidence_threshold"`
}

// DefaultConfidenceWeights returns the standard formula weights.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		PatternBoost:           0.1,
		LowConfidencePenalty:   0.05,
		LowConfidenceThreshold: 0.5,
	}
}

// DefaultRouteThreshold is the minimum confidence to hand off to the
// engine.
const DefaultRouteThreshold = 0.25

// Executor is the engine surface the router depends on.
type Executor interface {
	Execute(ctx context.Context, plan *resolve.Plan, request string) (*engine.ExecutionResult, error)
	ActiveProviders() []string
	IsActive(id string) bool
}

// Recovery is the checkpoint surface that brackets routed executions:
// a checkpoint is created before the engine runs, and a halted run
// restores the most recent one. *checkpoint.Manager satisfies it.
type Recovery interface {
	Create(ctx context.Context, description string) (*stores.CheckpointRecord, error)
	AutoRollback(ctx context.Context, phase string, cause error) (*checkpoint.RollbackResult, error)
}

// Options configures a Service.
type Options struct {
	// Threshold is the routing confidence gate. Zero means
	// DefaultRouteThreshold.
	Threshold float64

	// CacheTTL is the decision cache TTL. Zero means DefaultCacheTTL.
	CacheTTL time.Duration

	// Weights are the confidence formula weights. Zero value means
	// DefaultConfidenceWeights.
	Weights ConfidenceWeights

	// Audit receives one fire-and-forget entry per decision. Optional.
	Audit stores.AuditLog

	// Recovery brackets routed runs with checkpoints and rolls back
	// automatically when a critical phase halts execution. Optional; a
	// nil Recovery leaves halted runs as they stopped.
	Recovery Recovery

	// Metrics receives routing metrics. Optional.
	Metrics *telemetry.Metrics

	// Tracer receives routing spans. Optional.
	Tracer *telemetry.Tracer
}

// Service routes intents. It owns the decision cache and the outcome
// counters; a single Service is shared by all callers.
type Service struct {
	detector *detect.Detector
	mapper   *resolve.Mapper
	executor Executor
	cache    *decisionCache
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	audit    stores.AuditLog
	recovery Recovery

	threshold float64
	weights   ConfidenceWeights

	// mu protects the counters.
	mu       sync.Mutex
	routed   uint64
	fallback uint64
	errored  uint64
}

// NewService creates a router over the given detector, mapper and
// executor.
func NewService(detector *detect.Detector, mapper *resolve.Mapper, executor Executor, logger zerolog.Logger, opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultRouteThreshold
	}
	if opts.Weights == (ConfidenceWeights{}) {
		opts.Weights = DefaultConfidenceWeights()
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}

	return &Service{
		detector:  detector,
		mapper:    mapper,
		executor:  executor,
		cache:     newDecisionCache(opts.CacheTTL),
		logger:    logger.With().Str("component", "router").Logger(),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		audit:     opts.Audit,
		recovery:  opts.Recovery,
		threshold: opts.Threshold,
		weights:   opts.Weights,
	}
}

// Route handles one intent. A cache hit skips detection and resolution
// and goes straight to the decision's outcome; a zero-detection intent
// takes the fallback path without ever reaching the engine.
func (s *Service) Route(ctx context.Context, text string, reqContext map[string]string) (*Result, error) {
	start := time.Now()

	normalized := detect.Normalize(text)
	key := CacheKey(normalized, reqContext)

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.StartRouteSpan(ctx, key)
		defer span.End()
	}

	if decision, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("hash", key).Msg("cache hit")
		return s.conclude(ctx, decision, true, text, start)
	}

	decision := s.decide(text, key)
	s.cache.Put(key, decision)
	s.metrics.SetCacheSize(s.cache.Len())
	s.auditDecision(text, decision)

	return s.conclude(ctx, decision, false, text, start)
}

// decide computes a fresh routing decision for the intent.
func (s *Service) decide(text, key string) *Decision {
	start := time.Now()
	decision := &Decision{
		ID:          uuid.New().String(),
		RequestHash: key,
		RequestText: text,
		CreatedAt:   start,
	}
	defer func() { decision.ProcessingTime = time.Since(start) }()

	detection := s.detector.Detect(text)
	if detection.Empty() {
		decision.Status = StatusFallback
		decision.Rationale = "no capabilities detected"
		return decision
	}

	decision.Detected = detection.Capabilities
	decision.Patterns = detection.Patterns

	ids := detection.CapabilityNames()
	ids = append(ids, s.detector.InferDependencies(detection.Capabilities)...)
	descs := s.mapper.Map(ids)
	phases := s.mapper.DeploymentPhases(descs)

	plan := &resolve.Plan{
		Phases:              phases,
		DomainPriorityOrder: s.detector.DomainPriority(detection.Capabilities),
		Parallel:            true,
	}
	plan.EstimatedDuration = s.estimateDuration(plan)
	decision.Plan = plan
	decision.EstimatedDuration = plan.EstimatedDuration

	decision.Confidence = s.confidence(detection)
	if decision.Confidence >= s.threshold {
		decision.Status = StatusRouted
		decision.Rationale = fmt.Sprintf("confidence %.2f meets threshold %.2f for %d capabilities",
			decision.Confidence, s.threshold, plan.CapabilityCount())
	} else {
		decision.Status = StatusFallback
		decision.Rationale = fmt.Sprintf("confidence %.2f below threshold %.2f",
			decision.Confidence, s.threshold)
	}
	return decision
}

// confidence scores a detection: average detected confidence, boosted
// per pattern, penalized per low-confidence capability, clamped to
// [0,1].
func (s *Service) confidence(detection detect.Detection) float64 {
	var sum float64
	low := 0
	for _, c := range detection.Capabilities {
		sum += c.Confidence
		if c.Confidence < s.weights.LowConfidenceThreshold {
			low++
		}
	}
	score := sum / float64(len(detection.Capabilities))
	score += s.weights.PatternBoost * float64(len(detection.Patterns))
	score -= s.weights.LowConfidencePenalty * float64(low)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// estimateDuration estimates plan duration: a 2s base, plus the load
// timeout of every provider not yet active, plus 1.5s per capability.
func (s *Service) estimateDuration(plan *resolve.Plan) time.Duration {
	estimate := 2 * time.Second
	for _, phase := range plan.Phases {
		for _, desc := range phase.Capabilities {
			if !s.executor.IsActive(desc.ID) {
				estimate += desc.LoadTimeout
			}
		}
	}
	estimate += time.Duration(float64(plan.CapabilityCount()) * 1.5 * float64(time.Second))
	return estimate
}

// conclude turns a decision into a result, invoking the engine only on
// the routed path.
func (s *Service) conclude(ctx context.Context, decision *Decision, cached bool, text string, start time.Time) (*Result, error) {
	result := &Result{Decision: decision, Cached: cached}

	switch decision.Status {
	case StatusFallback:
		s.count(StatusFallback)
		result.FallbackMessage = "intent handled by fallback path: " + decision.Rationale
		s.metrics.RecordRoutingDecision(string(StatusFallback), decision.Confidence, time.Since(start))
		s.logger.Info().
			Str("decision", decision.ID).
			Bool("cached", cached).
			Msg("fallback path taken")
		return result, nil

	case StatusRouted:
		if s.recovery != nil {
			if _, cpErr := s.recovery.Create(ctx, "pre-run: "+text); cpErr != nil {
				s.logger.Warn().Err(cpErr).Str("decision", decision.ID).Msg("pre-run checkpoint failed")
			}
		}
		execution, err := s.executor.Execute(ctx, decision.Plan, text)
		result.Execution = execution
		if err != nil {
			if s.recovery != nil && execution != nil && execution.Halted {
				rollback, rbErr := s.recovery.AutoRollback(ctx, string(execution.HaltedPhase), err)
				if rbErr != nil {
					s.logger.Error().Err(rbErr).Str("decision", decision.ID).Msg("automatic rollback failed")
				} else {
					result.Rollback = rollback
					s.logger.Warn().
						Str("decision", decision.ID).
						Str("checkpoint", rollback.CheckpointID).
						Str("phase", string(execution.HaltedPhase)).
						Msg("rolled back after halted run")
				}
			}
			s.count(StatusErrored)
			s.metrics.RecordRoutingDecision(string(StatusErrored), decision.Confidence, time.Since(start))
			s.logger.Error().Err(err).Str("decision", decision.ID).Msg("execution failed")
			return result, err
		}
		s.count(StatusRouted)
		s.metrics.RecordRoutingDecision(string(StatusRouted), decision.Confidence, time.Since(start))
		s.logger.Info().
			Str("decision", decision.ID).
			Bool("cached", cached).
			Float64("confidence", decision.Confidence).
			Dur("estimated", decision.EstimatedDuration).
			Msg("intent routed")
		return result, nil

	default:
		s.count(StatusErrored)
		s.metrics.RecordRoutingDecision(string(StatusErrored), decision.Confidence, time.Since(start))
		return result, engine.NewPermanentError("routing failed", nil).
			WithCode(engine.ErrCodeInternal)
	}
}

func (s *Service) count(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case StatusRouted:
		s.routed++
	case StatusFallback:
		s.fallback++
	default:
		s.errored++
	}
}

// auditDecision appends one fire-and-forget audit entry; audit failures
// never affect routing.
func (s *Service) auditDecision(text string, decision *Decision) {
	if s.audit == nil {
		return
	}

	entry := &stores.AuditEntry{
		Phase:     "router",
		Actor:     "router",
		Action:    text,
		Rationale: decision.Rationale,
		Status:    string(decision.Status),
		Timestamp: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("audit append failed")
		}
	}()
}

// Stats returns the router's operational snapshot.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	routed, fallback, errored := s.routed, s.fallback, s.errored
	s.mu.Unlock()

	stats := Stats{
		CacheSize:       s.cache.Len(),
		ActiveProviders: len(s.executor.ActiveProviders()),
		Routed:          routed,
		Fallback:        fallback,
		Errored:         errored,
	}
	if total := routed + fallback + errored; total > 0 {
		stats.SuccessRate = float64(routed) / float64(total)
	}
	return stats
}

// Threshold returns the configured confidence gate.
func (s *Service) Threshold() float64 {
	return s.threshold
}
