package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/resolve"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

const (
	// DefaultMaxParallel bounds the number of concurrent provider calls
	// within a single phase.
	DefaultMaxParallel = 4

	// DefaultCallTimeout bounds a single provider call.
	DefaultCallTimeout = 60 * time.Second

	// DefaultLoadTimeout is used when a descriptor does not declare one.
	DefaultLoadTimeout = 30 * time.Second
)

// DefaultCriticalPhases are the phases whose failure halts the run.
func DefaultCriticalPhases() []capability.Domain {
	return []capability.Domain{capability.DomainFoundation, capability.DomainSecurity}
}

// Options configures an Engine.
type Options struct {
	// MaxParallel bounds concurrent provider calls within a phase.
	// Zero means DefaultMaxParallel.
	MaxParallel int

	// CallTimeout bounds a single provider call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// CriticalPhases lists the phases whose failure halts the run.
	// Nil means DefaultCriticalPhases.
	CriticalPhases []capability.Domain

	// Metrics receives execution metrics. Optional.
	Metrics *telemetry.Metrics

	// Tracer receives execution spans. Optional.
	Tracer *telemetry.Tracer
}

// Engine executes deployment plans against the capability registry.
// It owns the process-wide active-provider table: a provider is loaded
// at most once per process, on first use, and stays active afterwards.
type Engine struct {
	registry *capability.Registry
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer

	maxParallel int
	callTimeout time.Duration
	critical    map[capability.Domain]bool

	// mu protects status and inflight.
	mu       sync.Mutex
	status   map[string]ProviderStatus
	inflight map[string]chan struct{}
}

// New creates an engine over the given registry.
func New(registry *capability.Registry, logger zerolog.Logger, opts Options) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Metrics == nil {
		// Disabled collector; every record method is a no-op.
		opts.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	phases := opts.CriticalPhases
	if phases == nil {
		phases = DefaultCriticalPhases()
	}
	critical := make(map[capability.Domain]bool, len(phases))
	for _, p := range phases {
		critical[p] = true
	}

	return &Engine{
		registry:    registry,
		logger:      logger.With().Str("component", "engine").Logger(),
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
		maxParallel: opts.MaxParallel,
		callTimeout: opts.CallTimeout,
		critical:    critical,
		status:      make(map[string]ProviderStatus),
		inflight:    make(map[string]chan struct{}),
	}
}

// Execute runs the plan phase by phase. Phases run strictly in order;
// capabilities inside a phase run concurrently. Provider failures are
// captured in the phase results. When a critical phase fails, execution
// halts, remaining phases are skipped and a CRITICAL_PHASE_FAILED error
// is returned alongside the partial result.
func (e *Engine) Execute(ctx context.Context, plan *resolve.Plan, request string) (*ExecutionResult, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}

	start := time.Now()
	result := &ExecutionResult{Success: true}

	e.logger.Info().
		Int("phases", len(plan.Phases)).
		Int("capabilities", plan.CapabilityCount()).
		Msg("executing deployment plan")

	for _, phase := range plan.Phases {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			result.Success = false
			return result, NewTransientError("execution cancelled", err).WithCode(ErrCodeInternal)
		}

		pr := e.executePhase(ctx, phase, request)
		result.Phases = append(result.Phases, pr)

		status := "success"
		if !pr.Success {
			status = "failure"
			result.Success = false
		}
		e.metrics.RecordPhase(string(phase.Name), status, pr.Duration)

		if !pr.Success && e.critical[phase.Name] {
			result.Halted = true
			result.HaltedPhase = phase.Name
			result.Duration = time.Since(start)

			e.logger.Error().
				Str("phase", string(phase.Name)).
				Strs("failed", pr.FailedCapabilities()).
				Msg("critical phase failed, halting execution")

			return result, NewPermanentError("critical phase failed", nil).
				WithCode(ErrCodeCriticalPhase).
				WithPhase(string(phase.Name))
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// executePhase dispatches every capability in the phase through the
// bounded worker pool and gathers the results in plan order.
func (e *Engine) executePhase(ctx context.Context, phase resolve.Phase, request string) PhaseResult {
	start := time.Now()

	pctx := ctx
	if e.tracer != nil {
		var phaseSpan trace.Span
		pctx, phaseSpan = e.tracer.StartPhaseSpan(ctx, string(phase.Name), len(phase.Capabilities))
		defer phaseSpan.End()
	}

	e.logger.Debug().
		Str("phase", string(phase.Name)).
		Int("capabilities", len(phase.Capabilities)).
		Msg("executing phase")

	results := make([]CapabilityResult, len(phase.Capabilities))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup

	for i, desc := range phase.Capabilities {
		wg.Add(1)
		go func(i int, desc capability.Descriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = e.invoke(pctx, desc, phase.Name, request)
		}(i, desc)
	}
	wg.Wait()

	pr := PhaseResult{
		Phase:    phase.Name,
		Results:  results,
		Success:  true,
		Duration: time.Since(start),
	}
	for _, cr := range results {
		if !cr.Success {
			pr.Success = false
			break
		}
	}
	return pr
}

// invoke loads the provider if needed and performs one apply call.
// Every failure mode is converted into a CapabilityResult; nothing is
// propagated as a raw error.
func (e *Engine) invoke(ctx context.Context, desc capability.Descriptor, phase capability.Domain, request string) CapabilityResult {
	start := time.Now()
	cr := CapabilityResult{Capability: desc.ID}

	prov, ok := e.registry.Provider(desc.ID)
	if !ok {
		cr.Error = NewPermanentError("no provider bound", nil).
			WithCode(ErrCodeProviderUnbound).
			WithProvider(desc.ID).
			WithPhase(string(phase)).Error()
		cr.Duration = time.Since(start)
		e.metrics.RecordProviderError(desc.ID, "unbound")
		return cr
	}

	if err := e.ensureLoaded(ctx, desc, prov); err != nil {
		cr.Error = err.Error()
		cr.Duration = time.Since(start)
		return cr
	}

	const operation = "apply"

	cctx := ctx
	if e.tracer != nil {
		var span trace.Span
		cctx, span = e.tracer.StartProviderSpan(ctx, desc.ID, operation)
		defer span.End()
	}

	args := map[string]any{
		"request": request,
		"phase":   string(phase),
	}

	callCtx, cancel := context.WithTimeout(cctx, e.callTimeout)
	defer cancel()

	type callOutcome struct {
		result *capability.CallResult
		err    error
	}
	done := make(chan callOutcome, 1)
	go func() {
		res, err := prov.Call(callCtx, operation, args)
		done <- callOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		cr.Duration = time.Since(start)
		e.metrics.RecordProviderCall(desc.ID, operation, cr.Duration)
		switch {
		case out.err != nil:
			cr.Error = NewPermanentError("provider call failed", out.err).
				WithCode(ErrCodeCallFailed).
				WithProvider(desc.ID).
				WithPhase(string(phase)).Error()
			e.metrics.RecordProviderError(desc.ID, "call_error")
		case out.result == nil:
			cr.Error = NewPermanentError("provider returned no result", nil).
				WithCode(ErrCodeCallFailed).
				WithProvider(desc.ID).
				WithPhase(string(phase)).Error()
			e.metrics.RecordProviderError(desc.ID, "call_error")
		case !out.result.Success:
			cr.Output = out.result.Output
			cr.Error = out.result.Error
			e.metrics.RecordProviderError(desc.ID, "call_error")
		default:
			cr.Success = true
			cr.Output = out.result.Output
		}
		return cr

	case <-callCtx.Done():
		// Stop awaiting the call; the goroutine is abandoned with a
		// synthetic timeout result recorded in its place.
		cr.Duration = time.Since(start)
		cr.Error = NewTransientError("provider call timed out", callCtx.Err()).
			WithCode(ErrCodeCallTimeout).
			WithProvider(desc.ID).
			WithPhase(string(phase)).Error()
		e.metrics.RecordProviderCall(desc.ID, operation, cr.Duration)
		e.metrics.RecordProviderError(desc.ID, "call_timeout")
		return cr
	}
}

// ensureLoaded loads the provider on first use. Concurrent loads of the
// same provider are collapsed: the first caller performs the load, later
// callers wait for its outcome. A provider that loaded successfully once
// stays active for the lifetime of the process.
func (e *Engine) ensureLoaded(ctx context.Context, desc capability.Descriptor, prov capability.Provider) error {
	for {
		e.mu.Lock()
		if e.status[desc.ID] == ProviderActive {
			e.mu.Unlock()
			return nil
		}
		if ch, loading := e.inflight[desc.ID]; loading {
			e.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return NewTransientError("cancelled while waiting for provider load", ctx.Err()).
					WithCode(ErrCodeInternal).
					WithProvider(desc.ID)
			}
		}
		ch := make(chan struct{})
		e.inflight[desc.ID] = ch
		e.mu.Unlock()

		err := e.load(ctx, desc, prov)

		e.mu.Lock()
		delete(e.inflight, desc.ID)
		close(ch)
		e.mu.Unlock()
		return err
	}
}

// load performs one load attempt bounded by the descriptor's load timeout.
func (e *Engine) load(ctx context.Context, desc capability.Descriptor, prov capability.Provider) error {
	timeout := desc.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	e.logger.Debug().
		Str("provider", desc.ID).
		Dur("timeout", timeout).
		Msg("loading provider")

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- prov.Load(lctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			e.setStatus(desc.ID, ProviderLoadFailed)
			e.metrics.RecordProviderError(desc.ID, "load_error")
			return NewPermanentError("provider load failed", err).
				WithCode(ErrCodeLoadFailed).
				WithProvider(desc.ID)
		}
		e.setStatus(desc.ID, ProviderActive)
		e.logger.Info().Str("provider", desc.ID).Msg("provider active")
		return nil

	case <-lctx.Done():
		e.setStatus(desc.ID, ProviderLoadTimeout)
		e.metrics.RecordProviderError(desc.ID, "load_timeout")
		return NewTransientError("provider load timed out", lctx.Err()).
			WithCode(ErrCodeLoadTimeout).
			WithProvider(desc.ID)
	}
}

func (e *Engine) setStatus(id string, status ProviderStatus) {
	e.mu.Lock()
	e.status[id] = status
	active := 0
	for _, st := range e.status {
		if st == ProviderActive {
			active++
		}
	}
	e.mu.Unlock()
	e.metrics.SetActiveProviders(active)
}

// IsActive reports whether the provider has been loaded successfully.
func (e *Engine) IsActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status[id] == ProviderActive
}

// ProviderStatusOf returns the recorded status for a provider ID.
func (e *Engine) ProviderStatusOf(id string) (ProviderStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.status[id]
	return st, ok
}

// ActiveProviders returns the sorted IDs of all active providers.
func (e *Engine) ActiveProviders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ids []string
	for id, st := range e.status {
		if st == ProviderActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
