package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Validator evaluates infrastructure intents against the loaded safety
// policies. The zero set of violations means the intent is safe.
type Validator struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a parsed Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewValidator creates a validator pre-loaded with the built-in policies.
func NewValidator(logger zerolog.Logger) (*Validator, error) {
	v := &Validator{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "safety-validator").Logger(),
	}

	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := v.compileAndStore(&p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	v.logger.Info().Int("count", len(v.policies)).Msg("built-in safety policies loaded")
	return v, nil
}

// Validate evaluates the intent against every enabled policy. The error
// return covers evaluation failures only; an unsafe intent is reported
// through the verdict.
func (v *Validator) Validate(ctx context.Context, intent, environment string) (*Verdict, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	input := Input{
		Intent:      intent,
		Environment: environment,
		Timestamp:   time.Now(),
	}

	var violations []Violation
	for _, cp := range v.policies {
		if !cp.policy.Enabled {
			continue
		}

		found, err := v.evaluate(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
		}
		violations = append(violations, found...)
	}

	verdict := &Verdict{
		Safe:        true,
		Violations:  violations,
		EvaluatedAt: time.Now(),
	}
	for _, viol := range violations {
		if viol.Severity.Blocking() {
			verdict.Safe = false
			verdict.Rationale = viol.Message
			break
		}
	}
	if verdict.Safe {
		verdict.Rationale = "no safety violations detected"
		if len(violations) > 0 {
			verdict.Rationale = violations[0].Message
		}
	}

	v.logger.Debug().
		Bool("safe", verdict.Safe).
		Int("violations", len(violations)).
		Msg("intent validated")

	return verdict, nil
}

// evaluate runs one policy's deny query against the input.
func (v *Validator) evaluate(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	// Package.Path renders as "data.<package>", so the deny set lives
	// directly underneath it.
	query := cp.module.Package.Path.String() + ".deny"

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, v.toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts one deny result into a Violation.
func (v *Validator) toViolation(policy *Policy, result interface{}) Violation {
	viol := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch val := result.(type) {
	case string:
		viol.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			viol.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			viol.Severity = Severity(sev)
		}
	default:
		viol.Message = fmt.Sprintf("%v", result)
	}
	return viol
}

// LoadPolicies loads additional .rego policy files from the given paths.
func (v *Validator) LoadPolicies(ctx context.Context, paths []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	loader := NewLoader(v.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := v.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	v.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

// compileAndStore parses a policy and stores it by name.
func (v *Validator) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	v.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}

// GetPolicy returns a policy by name.
func (v *Validator) GetPolicy(name string) (*Policy, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cp, exists := v.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns the names of all loaded policies, sorted.
func (v *Validator) ListPolicies() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.policies))
	for name := range v.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnablePolicy enables a policy by name.
func (v *Validator) EnablePolicy(name string) error {
	return v.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (v *Validator) DisablePolicy(name string) error {
	return v.setEnabled(name, false)
}

func (v *Validator) setEnabled(name string, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	cp, exists := v.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	v.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")
	return nil
}
