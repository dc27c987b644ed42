// Package config loads and validates the StackPilot configuration from
// YAML. Every tunable has a default; a missing file yields the default
// configuration unchanged.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root StackPilot configuration.
type Config struct {
	// Project is the project name scoping state and checkpoints.
	Project string `yaml:"project" validate:"required"`

	// Environment is the deployment environment.
	Environment string `yaml:"environment" validate:"omitempty,oneof=dev staging prod"`

	// Store configures the SQLite persistence layer.
	Store StoreConfig `yaml:"store"`

	// Router configures the intent router.
	Router RouterConfig `yaml:"router"`

	// Engine configures phase execution.
	Engine EngineConfig `yaml:"engine"`

	// Pipeline configures the pipeline stage chain.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Checkpoint configures checkpoint retention and the VCS repository.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// Detector configures the keyword detector.
	Detector DetectorConfig `yaml:"detector"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the database file path. ":memory:" selects an in-memory
	// database.
	Path string `yaml:"path" validate:"required"`
}

// RouterConfig configures routing and the decision cache.
type RouterConfig struct {
	// Threshold is the minimum confidence to route to the engine.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	// CacheTTL is how long routing decisions stay cached.
	CacheTTL Duration `yaml:"cache_ttl"`

	// PatternBoost is added to the confidence per detected pattern.
	PatternBoost float64 `yaml:"pattern_boost" validate:"gte=0"`

	// LowConfidencePenalty is subtracted per low-confidence capability.
	LowConfidencePenalty float64 `yaml:"low_confidence_penalty" validate:"gte=0"`

	// LowConfidenceThreshold defines a low-confidence capability.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold" validate:"gte=0,lte=1"`
}

// EngineConfig configures phase execution.
type EngineConfig struct {
	// MaxParallel bounds concurrent capability executions per phase.
	MaxParallel int `yaml:"max_parallel" validate:"gte=1"`

	// CallTimeout bounds a single provider call.
	CallTimeout Duration `yaml:"call_timeout"`

	// CriticalPhases lists the phases whose failure halts the run.
	CriticalPhases []string `yaml:"critical_phases" validate:"dive,oneof=foundation security networking data compute application observability"`
}

// PipelineConfig configures the stage chain and circuit breaker.
type PipelineConfig struct {
	// StageTimeout bounds each stage.
	StageTimeout Duration `yaml:"stage_timeout"`

	// LegacyBypass routes intents through the legacy path instead of
	// the stage chain.
	LegacyBypass bool `yaml:"legacy_bypass"`

	// BreakerFailureThreshold is the consecutive-failure count that
	// opens the circuit.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold" validate:"gte=1"`

	// BreakerOpenDuration is how long the circuit stays open.
	BreakerOpenDuration Duration `yaml:"breaker_open_duration"`

	// MonthlyBudgetUSD is the cost guardrail. Zero disables it.
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd" validate:"gte=0"`
}

// CheckpointConfig configures checkpoints.
type CheckpointConfig struct {
	// Retention is how many checkpoints stay active during cleanup.
	Retention int `yaml:"retention" validate:"gte=1"`

	// RepoPath is the configuration repository path. Empty disables
	// version control capture.
	RepoPath string `yaml:"repo_path"`

	// AutoRollback brackets routed runs with a checkpoint and restores
	// the most recent one when a critical phase halts execution.
	AutoRollback bool `yaml:"auto_rollback"`
}

// DetectorConfig configures the keyword detector.
type DetectorConfig struct {
	// TablePath points to a YAML keyword table overriding the builtin
	// one. Empty selects the builtin table.
	TablePath string `yaml:"table_path"`

	// Watch reloads the keyword table when the file changes.
	Watch bool `yaml:"watch"`
}

// TelemetryConfig configures logging, metrics and tracing.
type TelemetryConfig struct {
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// LogFormat is console or json.
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`

	// MetricsEnabled controls metric collection.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MetricsListenAddr binds the /metrics endpoint. Empty disables
	// the endpoint.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// TracingEnabled controls trace export.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingExporter is otlp, stdout or none.
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP gRPC endpoint.
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// Default returns the configuration with every tunable at its default.
func Default() *Config {
	return &Config{
		Project:     "default",
		Environment: "dev",
		Store: StoreConfig{
			Path: "stackpilot.db",
		},
		Router: RouterConfig{
			Threshold:              0.25,
			CacheTTL:               Duration(300 * time.Second),
			PatternBoost:           0.1,
			LowConfidencePenalty:   0.05,
			LowConfidenceThreshold: 0.5,
		},
		Engine: EngineConfig{
			MaxParallel:    4,
			CallTimeout:    Duration(60 * time.Second),
			CriticalPhases: []string{"foundation", "security"},
		},
		Pipeline: PipelineConfig{
			StageTimeout:            Duration(10 * time.Second),
			BreakerFailureThreshold: 5,
			BreakerOpenDuration:     Duration(30 * time.Second),
			MonthlyBudgetUSD:        0,
		},
		Checkpoint: CheckpointConfig{
			Retention:    5,
			AutoRollback: true,
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "console",
			MetricsEnabled:  true,
			TracingExporter: "stdout",
		},
	}
}

// Load reads the configuration from path, merged over the defaults. A
// missing file returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// CriticalPhaseDomains returns the configured critical phases as
// deployment domains.
func (c *Config) CriticalPhaseDomains() []capability.Domain {
	domains := make([]capability.Domain, len(c.Engine.CriticalPhases))
	for i, name := range c.Engine.CriticalPhases {
		domains[i] = capability.Domain(name)
	}
	return domains
}

// TelemetrySettings converts the telemetry section to the telemetry
// package's configuration.
func (c *Config) TelemetrySettings(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Environment = c.Environment
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tc.Metrics.ListenAddr = c.Telemetry.MetricsListenAddr
	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	tc.Tracing.Exporter = c.Telemetry.TracingExporter
	tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	return tc
}
