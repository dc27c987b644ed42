package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestrator.
type Metrics struct {
	config MetricsConfig

	// Routing metrics
	routingDecisions *prometheus.CounterVec
	routingDuration  prometheus.Histogram
	confidenceScore  prometheus.Histogram
	cacheSize        prometheus.Gauge

	// Phase execution metrics
	phasesExecuted *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	activeProviders  prometheus.Gauge

	// Pipeline metrics
	pipelineStages *prometheus.CounterVec
	breakerState   prometheus.Gauge

	// Checkpoint metrics
	checkpointOps *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled, all record
// methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		routingDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Total number of routing decisions by outcome",
			},
			[]string{"status"},
		),
		routingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "routing_duration_seconds",
				Help:      "Duration of routing decisions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		confidenceScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "routing_confidence",
				Help:      "Confidence score distribution of routing decisions",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		cacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "routing_cache_entries",
				Help:      "Current number of cached routing decisions",
			},
		),

		phasesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_executed_total",
				Help:      "Total number of phases executed by outcome",
			},
			[]string{"phase", "status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of phase execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls",
			},
			[]string{"provider", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of provider calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
		activeProviders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_providers",
				Help:      "Current number of active (loaded) providers",
			},
		),

		pipelineStages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stages_total",
				Help:      "Total number of pipeline stage executions by outcome",
			},
			[]string{"stage", "status"},
		),
		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_open",
				Help:      "Whether the pipeline circuit breaker is open (1) or closed (0)",
			},
		),

		checkpointOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoint_operations_total",
				Help:      "Total number of checkpoint operations by outcome",
			},
			[]string{"operation", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.routingDecisions, m.routingDuration, m.confidenceScore, m.cacheSize,
		m.phasesExecuted, m.phaseDuration,
		m.providerCalls, m.providerDuration, m.providerErrors, m.activeProviders,
		m.pipelineStages, m.breakerState,
		m.checkpointOps,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordRoutingDecision records a routing decision outcome.
func (m *Metrics) RecordRoutingDecision(status string, confidence float64, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.routingDecisions.WithLabelValues(status).Inc()
	m.routingDuration.Observe(duration.Seconds())
	m.confidenceScore.Observe(confidence)
}

// SetCacheSize records the current decision cache size.
func (m *Metrics) SetCacheSize(n int) {
	if m.registry == nil {
		return
	}
	m.cacheSize.Set(float64(n))
}

// RecordPhase records a phase execution outcome.
func (m *Metrics) RecordPhase(phase, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.phasesExecuted.WithLabelValues(phase, status).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordProviderCall records one provider call.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderError records a provider failure by kind
// (load_timeout, call_timeout, call_error).
func (m *Metrics) RecordProviderError(provider, kind string) {
	if m.registry == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

// SetActiveProviders records the active-provider table size.
func (m *Metrics) SetActiveProviders(n int) {
	if m.registry == nil {
		return
	}
	m.activeProviders.Set(float64(n))
}

// RecordPipelineStage records one pipeline stage outcome
// (ok, fallback, blocked, timeout).
func (m *Metrics) RecordPipelineStage(stage, status string) {
	if m.registry == nil {
		return
	}
	m.pipelineStages.WithLabelValues(stage, status).Inc()
}

// SetBreakerOpen records the circuit breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m.registry == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
	} else {
		m.breakerState.Set(0)
	}
}

// RecordCheckpointOp records a checkpoint operation outcome.
func (m *Metrics) RecordCheckpointOp(operation, status string) {
	if m.registry == nil {
		return
	}
	m.checkpointOps.WithLabelValues(operation, status).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
