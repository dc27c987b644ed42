package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the intent.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never proceed.
	SeverityCritical Severity = "critical"
)

// Policy represents a safety policy with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation represents a single safety violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Verdict is the result of validating one intent.
type Verdict struct {
	// Safe is true when no blocking violations were found.
	Safe bool `json:"safe"`

	// Rationale explains the verdict in one sentence.
	Rationale string `json:"rationale"`

	// Violations lists every violation, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedAt is when the validation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Blocking reports whether the severity blocks an intent.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Input is the document passed to every policy evaluation.
type Input struct {
	// Intent is the raw infrastructure intent text.
	Intent string `json:"intent"`

	// Environment is the target environment, if known.
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
