package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a protocol failure detected while emulating an
// invocation. The invocation it names finishes as failed.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Invocation identifies the failed invocation.
	Invocation string

	// Phase is the phase that failed, if any.
	Phase string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMissingArtifact indicates hydrate found no state under the
	// expected artifact name.
	ErrCodeMissingArtifact RuntimeErrorCode = "MISSING_ARTIFACT"

	// ErrCodeStateMismatch indicates a restored artifact does not belong to
	// the invocation (wrong key or iteration, or invalid content).
	ErrCodeStateMismatch RuntimeErrorCode = "STATE_MISMATCH"

	// ErrCodeQuotaExceeded indicates the chain exceeded its dispatch quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeRunnerFailed indicates the Runner returned an error.
	ErrCodeRunnerFailed RuntimeErrorCode = "RUNNER_FAILED"

	// ErrCodeUnknownConstruct indicates a claimed invocation names a cycle
	// the engine was not given.
	ErrCodeUnknownConstruct RuntimeErrorCode = "UNKNOWN_CONSTRUCT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Invocation != "" && e.Phase != "":
		return fmt.Sprintf("%s: %s (invocation=%s, phase=%s)", e.Code, msg, e.Invocation, e.Phase)
	case e.Invocation != "":
		return fmt.Sprintf("%s: %s (invocation=%s)", e.Code, msg, e.Invocation)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and a bare
// *QuotaExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeQuotaExceeded {
		return true
	}
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// ErrorCode returns the RuntimeErrorCode carried by err, or "" if err is
// not a RuntimeError.
func ErrorCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func newRuntimeError(code RuntimeErrorCode, inv string, p phase, err error, format string, args ...any) *RuntimeError {
	re := &RuntimeError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Invocation: inv,
		Err:        err,
	}
	if p != 0 {
		re.Phase = p.String()
	}
	return re
}
