// Package sim provides simulated capability providers for local
// development and tests. A simulated provider behaves like a real cloud
// provider at the interface level: it warms up on Load, takes time per
// operation, records provisioned resources in the tracked-state store
// and can be configured to fail.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

// Options configures a simulated provider.
type Options struct {
	// Warmup is how long Load takes. Zero means instant.
	Warmup time.Duration

	// Latency is how long each Call takes. Zero means instant.
	Latency time.Duration

	// LoadErr makes every Load fail with this error.
	LoadErr error

	// FailOperations maps operation names to injected failures. A
	// failing operation returns an unsuccessful CallResult, not an
	// error; that mirrors how real providers report provisioning
	// failures.
	FailOperations map[string]string

	// State receives one resource record per apply. Optional.
	State stores.StateStore

	// Project scopes the recorded state. Defaults to "default".
	Project string
}

// Provider is a simulated capability provider.
type Provider struct {
	id     string
	domain capability.Domain
	opts   Options
	logger zerolog.Logger
}

// New creates a simulated provider for one capability.
func New(desc capability.Descriptor, logger zerolog.Logger, opts Options) *Provider {
	if opts.Project == "" {
		opts.Project = "default"
	}
	return &Provider{
		id:     desc.ID,
		domain: desc.Domain,
		opts:   opts,
		logger: logger.With().Str("component", "sim-provider").Str("capability", desc.ID).Logger(),
	}
}

// Load simulates client setup and credential resolution.
func (p *Provider) Load(ctx context.Context) error {
	if p.opts.Warmup > 0 {
		select {
		case <-time.After(p.opts.Warmup):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.opts.LoadErr != nil {
		return fmt.Errorf("simulated load failure for %s: %w", p.id, p.opts.LoadErr)
	}
	p.logger.Debug().Msg("provider loaded")
	return nil
}

// Call simulates one provider operation. Supported operations are
// apply, destroy and status; anything else fails.
func (p *Provider) Call(ctx context.Context, operation string, args map[string]any) (*capability.CallResult, error) {
	if p.opts.Latency > 0 {
		select {
		case <-time.After(p.opts.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if msg, ok := p.opts.FailOperations[operation]; ok {
		return &capability.CallResult{Success: false, Error: msg}, nil
	}

	switch operation {
	case "apply":
		return p.apply(ctx, args)
	case "destroy":
		return p.destroy(ctx)
	case "status":
		return p.status()
	default:
		return nil, fmt.Errorf("unknown operation %q for %s", operation, p.id)
	}
}

// resourceName is the deterministic name of the provider's simulated
// resource.
func (p *Provider) resourceName() string {
	return p.id + "-main"
}

func (p *Provider) apply(ctx context.Context, args map[string]any) (*capability.CallResult, error) {
	phase := string(p.domain)
	if v, ok := args["phase"].(string); ok && v != "" {
		phase = v
	}

	if p.opts.State != nil {
		record := &stores.ResourceState{
			Project:      p.opts.Project,
			ResourceName: p.resourceName(),
			ResourceType: p.id,
			Phase:        phase,
			Status:       "created",
			Timestamp:    time.Now(),
		}
		if err := p.opts.State.Put(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record state for %s: %w", p.id, err)
		}
	}

	output, err := json.Marshal(map[string]string{
		"resource": p.resourceName(),
		"phase":    phase,
		"status":   "created",
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("resource", p.resourceName()).Str("phase", phase).Msg("resource provisioned")
	return &capability.CallResult{Success: true, Output: output}, nil
}

func (p *Provider) destroy(ctx context.Context) (*capability.CallResult, error) {
	if p.opts.State != nil {
		if err := p.opts.State.Delete(ctx, p.opts.Project, p.resourceName()); err != nil {
			return nil, fmt.Errorf("failed to delete state for %s: %w", p.id, err)
		}
	}

	output, err := json.Marshal(map[string]string{
		"resource": p.resourceName(),
		"status":   "destroyed",
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("resource", p.resourceName()).Msg("resource destroyed")
	return &capability.CallResult{Success: true, Output: output}, nil
}

func (p *Provider) status() (*capability.CallResult, error) {
	output, err := json.Marshal(map[string]string{
		"resource": p.resourceName(),
		"status":   "ok",
	})
	if err != nil {
		return nil, err
	}
	return &capability.CallResult{Success: true, Output: output}, nil
}

// BindAll binds a simulated provider to every descriptor in the
// registry, all sharing the same options.
func BindAll(registry *capability.Registry, logger zerolog.Logger, opts Options) error {
	for _, desc := range registry.List() {
		if err := registry.Bind(desc.ID, New(desc, logger, opts)); err != nil {
			return err
		}
	}
	return nil
}
