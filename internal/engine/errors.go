package engine

import (
	"errors"
	"fmt"
)

// Error represents a failure detected by the engine.
//
// Engine errors include:
//   - Invalid configuration: rejected before any side effect
//   - Persistence failure: a Gateway write failed, processing continued
//   - Lifecycle misuse: run already active, not accepting work, no run
//
// Error includes structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ItemID identifies the affected work item, if any.
	ItemID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidConfiguration indicates a rejected run configuration.
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// ErrCodePersistenceFailure indicates one or more Gateway writes failed.
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"

	// ErrCodeRunActive indicates an operation that needs an idle engine.
	ErrCodeRunActive ErrorCode = "RUN_ACTIVE"

	// ErrCodeNotAccepting indicates Submit outside an Open run.
	ErrCodeNotAccepting ErrorCode = "NOT_ACCEPTING"

	// ErrCodeNoRun indicates Stop without a running run.
	ErrCodeNoRun ErrorCode = "NO_RUN"
)

// Lifecycle errors. Match with errors.Is; any *Error with the same Code
// matches.
var (
	ErrRunActive    = &Error{Code: ErrCodeRunActive, Message: "a run is already active"}
	ErrNotAccepting = &Error{Code: ErrCodeNotAccepting, Message: "engine is not accepting work"}
	ErrNoRun        = &Error{Code: ErrCodeNoRun, Message: "no run is active"}
)

// Work classification errors returned by Work functions and run causes.
var (
	// ErrInterrupted marks a transient interruption. The item is retried.
	ErrInterrupted = errors.New("work interrupted")

	// ErrPermanent marks a failure that must not be retried.
	ErrPermanent = errors.New("permanent work failure")

	// ErrGraceExpired is the cancellation cause of a run whose grace
	// period ran out after Stop.
	ErrGraceExpired = errors.New("shutdown grace period expired")
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ItemID != "" {
		msg = fmt.Sprintf("%s (item=%s)", msg, e.ItemID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// IsInvalidConfiguration returns true if err is an invalid configuration error.
// Uses errors.As to handle wrapped errors.
func IsInvalidConfiguration(err error) bool {
	return hasCode(err, ErrCodeInvalidConfiguration)
}

// IsPersistenceError returns true if err reports failed Gateway writes.
func IsPersistenceError(err error) bool {
	return hasCode(err, ErrCodePersistenceFailure)
}

// IsRunActive returns true if err was caused by an active run.
func IsRunActive(err error) bool {
	return hasCode(err, ErrCodeRunActive)
}

// IsNotAccepting returns true if err is a rejected Submit.
func IsNotAccepting(err error) bool {
	return hasCode(err, ErrCodeNotAccepting)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// NewInvalidConfigurationError creates an Error for a rejected configuration.
func NewInvalidConfigurationError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewPersistenceError creates an Error for failed Gateway access.
func NewPersistenceError(msg string, err error) *Error {
	return &Error{
		Code:    ErrCodePersistenceFailure,
		Message: msg,
		Err:     err,
	}
}
