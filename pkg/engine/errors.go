// Package engine executes deployment plans phase by phase. Phases run
// strictly in order; capabilities inside a phase are dispatched to their
// providers concurrently through a bounded worker pool. A failure in a
// critical phase halts the run; failures elsewhere are recorded and the
// run continues.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: provider load timeouts, provider call timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict.
	// Examples: rolling back to an inactive checkpoint.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: unbound providers, critical phase failures, unsafe intents.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Provider is the capability provider involved, if applicable.
	Provider string `json:"provider,omitempty"`

	// Phase is the deployment phase being executed when the error occurred.
	Phase string `json:"phase,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Provider != "" && e.Phase != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, phase=%s)%s",
			e.Class, e.Message, e.Provider, e.Phase, e.unwrapSuffix())
	}
	if e.Phase != "" {
		return fmt.Sprintf("[%s] %s (phase=%s)%s", e.Class, e.Message, e.Phase, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithProvider adds provider context to an error.
func (e *EngineError) WithProvider(id string) *EngineError {
	e.Provider = id
	return e
}

// WithPhase adds phase context to an error.
func (e *EngineError) WithPhase(phase string) *EngineError {
	e.Phase = phase
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeProviderUnbound  = "PROVIDER_UNBOUND"
	ErrCodeLoadTimeout      = "PROVIDER_LOAD_TIMEOUT"
	ErrCodeLoadFailed       = "PROVIDER_LOAD_FAILED"
	ErrCodeCallTimeout      = "PROVIDER_CALL_TIMEOUT"
	ErrCodeCallFailed       = "PROVIDER_CALL_FAILED"
	ErrCodeCriticalPhase    = "CRITICAL_PHASE_FAILED"
	ErrCodeEmptyDetection   = "EMPTY_DETECTION"
	ErrCodeLowConfidence    = "LOW_CONFIDENCE"
	ErrCodePipelineBlocked  = "PIPELINE_BLOCKED"
	ErrCodeCheckpointState  = "CHECKPOINT_STATE"
	ErrCodeRollbackFailed   = "ROLLBACK_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
