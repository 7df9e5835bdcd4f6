// Package engine implements the cumulo stack execution core: the cooperative
// task runner, the resource dependency graph, the per-resource lifecycle state
// machine, and the stack engine that drives them.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates a malformed stack definition or a
	// disallowed operation, detected before any provider call is made.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassTransient indicates a temporary provider failure that may
	// succeed if the same action is re-run by an operator.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable provider error.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassTimeout indicates a completion poll exceeded its budget.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCancelled indicates the action was cancelled by the caller.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// EngineError represents a classified error with resource context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the action being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)", e.Class, msg, e.Resource, e.Operation)
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Class, msg, e.Resource)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewTransientError creates a new transient provider error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a new permanent provider error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTimeout, Message: message, Code: ErrCodeTimeout, Err: err}
}

// NewCancelledError creates a new cancellation error. Cancellation is not a
// provider failure; it marks that the caller abandoned the action.
func NewCancelledError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassCancelled, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(name string) *EngineError {
	e.Resource = name
	return e
}

// WithOperation adds action context to an error.
func (e *EngineError) WithOperation(op string) *EngineError {
	e.Operation = op
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTimeout
	}
	return false
}

// IsCancelled returns true if the error is classified as a cancellation.
func IsCancelled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCancelled
	}
	return false
}

// IsNotFound returns true if the error carries the NOT_FOUND code. A handler
// reporting not-found during delete is treated as success.
func IsNotFound(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeGraph         = "GRAPH_ERROR"
	ErrCodeRestricted    = "RESTRICTED"
	ErrCodeUnknownAttr   = "UNKNOWN_ATTRIBUTE"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeProvider      = "PROVIDER_FAILED"
	ErrCodeHookRejected  = "HOOK_REJECTED"
	ErrCodeUnknownType   = "UNKNOWN_TYPE"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
)

// Contract violations. These are programming errors and the only failures
// allowed to propagate past the state machine unconverted.
var (
	// ErrTaskAlreadyStarted is returned when Start is called twice on a runner.
	ErrTaskAlreadyStarted = errors.New("task already started")

	// ErrTaskNotStarted is returned when Step is called before Start.
	ErrTaskNotStarted = errors.New("task not started")
)

// ErrActionNotSupported is returned by a resource handler that does not
// implement the requested action. The engine treats it as an instant no-op
// completion.
var ErrActionNotSupported = errors.New("action not supported")
