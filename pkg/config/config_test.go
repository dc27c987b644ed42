package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackpilot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if !cfg.Checkpoint.AutoRollback {
		t.Error("auto rollback must default on")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Router.Threshold != Default().Router.Threshold {
		t.Error("missing file must yield defaults")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.MaxParallel != 4 {
		t.Errorf("expected default pool size 4, got %d", cfg.Engine.MaxParallel)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
project: payments
environment: prod
store:
  path: /var/lib/stackpilot/state.db
router:
  threshold: 0.6
  cache_ttl: 2m
engine:
  max_parallel: 8
  call_timeout: 90s
  critical_phases: [foundation, security, data]
pipeline:
  stage_timeout: 5s
  breaker_failure_threshold: 3
  breaker_open_duration: 45s
  monthly_budget_usd: 1000
checkpoint:
  retention: 10
  auto_rollback: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "payments" || cfg.Environment != "prod" {
		t.Errorf("unexpected identity: %s/%s", cfg.Project, cfg.Environment)
	}
	if cfg.Router.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %f", cfg.Router.Threshold)
	}
	if cfg.Router.CacheTTL.Std() != 2*time.Minute {
		t.Errorf("expected TTL 2m, got %s", cfg.Router.CacheTTL.Std())
	}
	if cfg.Engine.MaxParallel != 8 || cfg.Engine.CallTimeout.Std() != 90*time.Second {
		t.Errorf("unexpected engine settings: %+v", cfg.Engine)
	}
	if len(cfg.Engine.CriticalPhases) != 3 {
		t.Errorf("expected 3 critical phases, got %v", cfg.Engine.CriticalPhases)
	}
	if cfg.Pipeline.BreakerFailureThreshold != 3 || cfg.Pipeline.MonthlyBudgetUSD != 1000 {
		t.Errorf("unexpected pipeline settings: %+v", cfg.Pipeline)
	}
	if cfg.Checkpoint.Retention != 10 {
		t.Errorf("expected retention 10, got %d", cfg.Checkpoint.Retention)
	}
	if cfg.Checkpoint.AutoRollback {
		t.Error("expected auto rollback disabled")
	}

	// Untouched sections keep their defaults.
	if cfg.Router.PatternBoost != 0.1 {
		t.Errorf("expected default pattern boost, got %f", cfg.Router.PatternBoost)
	}
	if cfg.Telemetry.LogLevel != "info" {
		t.Errorf("expected default log level, got %s", cfg.Telemetry.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"threshold above one", "router:\n  threshold: 1.5\n"},
		{"zero pool size", "engine:\n  max_parallel: 0\n"},
		{"unknown critical phase", "engine:\n  critical_phases: [foundation, kernel]\n"},
		{"unknown environment", "environment: sandbox\n"},
		{"bad log level", "telemetry:\n  log_level: loud\n"},
		{"negative budget", "pipeline:\n  monthly_budget_usd: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	if _, err := Load(writeConfig(t, "router:\n  cache_ttl: soonish\n")); err == nil {
		t.Error("expected duration parse error")
	}
}

func TestCriticalPhaseDomains(t *testing.T) {
	cfg := Default()
	domains := cfg.CriticalPhaseDomains()
	if len(domains) != 2 || string(domains[0]) != "foundation" || string(domains[1]) != "security" {
		t.Errorf("unexpected critical phases: %v", domains)
	}
}

func TestTelemetrySettings(t *testing.T) {
	cfg := Default()
	cfg.Environment = "prod"
	cfg.Telemetry.LogFormat = "json"
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TracingExporter = "otlp"
	cfg.Telemetry.TracingEndpoint = "collector:4317"

	tc := cfg.TelemetrySettings("1.2.3")
	if tc.ServiceVersion != "1.2.3" || tc.Environment != "prod" {
		t.Errorf("unexpected identity: %+v", tc)
	}
	if tc.Logging.Format != "json" {
		t.Errorf("expected json logging, got %s", tc.Logging.Format)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing settings: %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("converted settings must validate: %v", err)
	}
}
