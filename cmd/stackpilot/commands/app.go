package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/checkpoint"
	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/cost"
	"github.com/stackpilot/stackpilot/pkg/detect"
	"github.com/stackpilot/stackpilot/pkg/engine"
	"github.com/stackpilot/stackpilot/pkg/pipeline"
	"github.com/stackpilot/stackpilot/pkg/policy"
	"github.com/stackpilot/stackpilot/pkg/providers/sim"
	"github.com/stackpilot/stackpilot/pkg/resolve"
	"github.com/stackpilot/stackpilot/pkg/router"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
	"github.com/stackpilot/stackpilot/pkg/vcs"
)

// app holds the wired application components for one command run.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	store   *stores.SQLiteStore
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	registry    *capability.Registry
	detector    *detect.Detector
	mapper      *resolve.Mapper
	engine      *engine.Engine
	router      *router.Service
	chain       *pipeline.Chain
	checkpoints *checkpoint.Manager
}

// newApp loads the configuration and wires every component.
func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	tcfg := cfg.TelemetrySettings(version)
	logger, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, version, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	if addr := cfg.Telemetry.MetricsListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint failed")
			}
		}()
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	registry := capability.NewBuiltinRegistry()
	if err := sim.BindAll(registry, logger, sim.Options{State: store, Project: cfg.Project}); err != nil {
		return nil, fmt.Errorf("failed to bind providers: %w", err)
	}

	table := detect.BuiltinTable()
	if cfg.Detector.TablePath != "" {
		table, err = detect.LoadTable(cfg.Detector.TablePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keyword table: %w", err)
		}
	}
	detector := detect.NewDetector(table, detect.DefaultInferenceRules(), registry, logger)
	if cfg.Detector.Watch && cfg.Detector.TablePath != "" {
		watcher := detect.NewWatcher(detector, cfg.Detector.TablePath, logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("keyword table watcher stopped")
			}
		}()
	}

	mapper := resolve.NewMapper(registry, nil, logger)

	eng := engine.New(registry, logger, engine.Options{
		MaxParallel:    cfg.Engine.MaxParallel,
		CallTimeout:    cfg.Engine.CallTimeout.Std(),
		CriticalPhases: cfg.CriticalPhaseDomains(),
		Metrics:        metrics,
		Tracer:         tracer,
	})

	var client vcs.Client
	if cfg.Checkpoint.RepoPath != "" {
		client, err = vcs.Open(cfg.Checkpoint.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open repository %s: %w", cfg.Checkpoint.RepoPath, err)
		}
	}
	checkpoints := checkpoint.NewManager(cfg.Project, store, store, client, logger, checkpoint.Options{
		Metrics: metrics,
		Tracer:  tracer,
	})

	routerOpts := router.Options{
		Threshold: cfg.Router.Threshold,
		CacheTTL:  cfg.Router.CacheTTL.Std(),
		Weights: router.ConfidenceWeights{
			PatternBoost:           cfg.Router.PatternBoost,
			LowConfidencePenalty:   cfg.Router.LowConfidencePenalty,
			LowConfidenceThreshold: cfg.Router.LowConfidenceThreshold,
		},
		Audit:   store,
		Metrics: metrics,
		Tracer:  tracer,
	}
	if cfg.Checkpoint.AutoRollback {
		routerOpts.Recovery = checkpoints
	}
	routerSvc := router.NewService(detector, mapper, eng, logger, routerOpts)

	validator, err := policy.NewValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to compile safety policies: %w", err)
	}

	breaker := pipeline.NewCircuitBreaker(
		cfg.Pipeline.BreakerFailureThreshold,
		cfg.Pipeline.BreakerOpenDuration.Std(),
	)
	chain := pipeline.NewChain(
		breaker,
		&pipeline.PolicyValidator{Validator: validator, Environment: cfg.Environment},
		&pipeline.IntentCostEstimator{
			Detector:  detector,
			Mapper:    mapper,
			Estimator: cost.NewTableEstimator(nil, logger),
			Guardrail: cost.Guardrail{MonthlyBudgetUSD: cfg.Pipeline.MonthlyBudgetUSD},
		},
		&pipeline.ManifestBuilder{Detector: detector, Mapper: mapper},
		&pipeline.LocalPublisher{},
		logger,
		pipeline.Options{
			StageTimeout: cfg.Pipeline.StageTimeout.Std(),
			LegacyBypass: cfg.Pipeline.LegacyBypass,
			Legacy: func(ctx context.Context, intent string) (string, error) {
				result, err := routerSvc.Route(ctx, intent, nil)
				if err != nil {
					return "", err
				}
				return result.Decision.Rationale, nil
			},
			Audit:   store,
			Metrics: metrics,
		},
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		metrics:     metrics,
		tracer:      tracer,
		registry:    registry,
		detector:    detector,
		mapper:      mapper,
		engine:      eng,
		router:      routerSvc,
		chain:       chain,
		checkpoints: checkpoints,
	}, nil
}

// Close flushes traces and closes the store.
func (a *app) Close(ctx context.Context) {
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("trace shutdown failed")
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("store close failed")
	}
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
