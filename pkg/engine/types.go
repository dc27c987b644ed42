package engine

import (
	"encoding/json"
	"time"

	"github.com/stackpilot/stackpilot/pkg/capability"
)

// ProviderStatus describes the lifecycle state of a provider in the
// process-wide active-provider table.
type ProviderStatus string

const (
	// ProviderActive means the provider loaded successfully and can serve calls.
	ProviderActive ProviderStatus = "active"

	// ProviderLoadFailed means the most recent load attempt returned an error.
	ProviderLoadFailed ProviderStatus = "load_failed"

	// ProviderLoadTimeout means the most recent load attempt exceeded the
	// descriptor's load timeout.
	ProviderLoadTimeout ProviderStatus = "load_timeout"
)

// CapabilityResult is the outcome of a single provider call within a phase.
type CapabilityResult struct {
	// Capability is the capability ID the call was dispatched for.
	Capability string `json:"capability"`

	// Success reports whether the provider call completed successfully.
	Success bool `json:"success"`

	// Output is the raw provider output, if any.
	Output json.RawMessage `json:"output,omitempty"`

	// Error holds the failure description when Success is false. Provider
	// errors are always captured here rather than propagated.
	Error string `json:"error,omitempty"`

	// Duration is the wall-clock time of the call, including load time
	// when the provider had to be loaded first.
	Duration time.Duration `json:"duration"`
}

// PhaseResult aggregates the capability results of one deployment phase.
type PhaseResult struct {
	// Phase is the deployment phase name.
	Phase capability.Domain `json:"phase"`

	// Results holds one entry per capability, in plan order.
	Results []CapabilityResult `json:"results"`

	// Success is true only when every capability in the phase succeeded.
	Success bool `json:"success"`

	// Duration is the wall-clock time of the whole phase.
	Duration time.Duration `json:"duration"`
}

// FailedCapabilities returns the IDs of capabilities that failed in this phase.
func (r *PhaseResult) FailedCapabilities() []string {
	var failed []string
	for _, cr := range r.Results {
		if !cr.Success {
			failed = append(failed, cr.Capability)
		}
	}
	return failed
}

// ExecutionResult is the outcome of executing a full deployment plan.
type ExecutionResult struct {
	// Phases holds the per-phase results for every phase that ran.
	Phases []PhaseResult `json:"phases"`

	// Success is true only when every executed phase succeeded and the
	// run was not halted.
	Success bool `json:"success"`

	// Halted is true when a critical phase failed and later phases were
	// skipped.
	Halted bool `json:"halted"`

	// HaltedPhase names the critical phase that caused the halt.
	HaltedPhase capability.Domain `json:"halted_phase,omitempty"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
}

// PhaseResult returns the result for the named phase, or nil if that
// phase did not run.
func (r *ExecutionResult) PhaseResult(phase capability.Domain) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Phase == phase {
			return &r.Phases[i]
		}
	}
	return nil
}
