package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by Store implementations when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates invalid startup configuration.
	// Examples: malformed dispatch URL, unknown sender type.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassTransport indicates the executor could not be reached or rejected the hand-off.
	// It is never retried at this layer.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassIntegrity indicates a defect: a callback for an unknown work item, an
	// unexpected kind/operation pair or a broken chain.
	ErrorClassIntegrity ErrorClass = "integrity"

	// ErrorClassConflict indicates the target entity is busy with another operation.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassValidation indicates a malformed request.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassPermanent indicates any other non-recoverable error.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the work item or entity ID that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	} else if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
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

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewTransportError creates a new transport error.
func NewTransportError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransport, Message: message, Err: err}
}

// NewIntegrityError creates a new integrity error.
func NewIntegrityError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassIntegrity, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsConfiguration returns true if the error is classified as a configuration fault.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsTransport returns true if the error is classified as a transport fault.
func IsTransport(err error) bool {
	return hasClass(err, ErrorClassTransport)
}

// IsIntegrity returns true if the error is classified as an integrity fault.
func IsIntegrity(err error) bool {
	return hasClass(err, ErrorClassIntegrity)
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return hasClass(err, ErrorClassConflict)
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// ErrorCode returns the code of the first EngineError in the chain, or "".
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBusy             = "BUSY"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInvalidSender    = "INVALID_SENDER"
	ErrCodeDispatchFailed   = "DISPATCH_FAILED"
	ErrCodeUnknownWorkItem  = "UNKNOWN_WORK_ITEM"
	ErrCodeUnexpectedAction = "UNEXPECTED_ACTION"
	ErrCodeMissingSuccessor = "MISSING_SUCCESSOR"
	ErrCodeChainCycle       = "CHAIN_CYCLE"
	ErrCodeMissingSnapshot  = "MISSING_SNAPSHOT"
	ErrCodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
