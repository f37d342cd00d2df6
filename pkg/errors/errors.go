package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Mutation-path errors, returned synchronously to the caller
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeVersionConflict ErrorType = "VERSION_CONFLICT"
	ErrorTypeLockHeld        ErrorType = "LOCK_HELD"
	ErrorTypeLockExpired     ErrorType = "LOCK_EXPIRED"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"

	// Application errors
	ErrorTypeInternal ErrorType = "INTERNAL"
	ErrorTypeTimeout  ErrorType = "TIMEOUT"

	// Infrastructure errors
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

// Constructor functions for common error types

// NewValidationError creates a validation error. Mutations that fail
// validation are rejected atomically and never partially applied.
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewVersionConflictError creates a stale-write error. The caller must
// refetch the element and retry; conflicting writes are never merged.
func NewVersionConflictError(elementID string, expected, actual int) *AppError {
	return &AppError{
		Type:       ErrorTypeVersionConflict,
		Message:    fmt.Sprintf("version conflict on %s: expected %d, actual %d", elementID, expected, actual),
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			"element_id":       elementID,
			"expected_version": expected,
			"actual_version":   actual,
		},
	}
}

// NewLockHeldError creates a lock contention error. Non-fatal; the caller
// retries or surfaces the condition.
func NewLockHeldError(branchID, holderID string) *AppError {
	return &AppError{
		Type:       ErrorTypeLockHeld,
		Message:    fmt.Sprintf("branch %s is locked by %s", branchID, holderID),
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			"branch_id": branchID,
			"holder_id": holderID,
		},
	}
}

// NewLockExpiredError creates a lapsed-lease error. The holder missed its
// renewal heartbeat and the lease has been reclaimed.
func NewLockExpiredError(branchID, holderID string) *AppError {
	return &AppError{
		Type:       ErrorTypeLockExpired,
		Message:    fmt.Sprintf("lease on branch %s held by %s has expired", branchID, holderID),
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		StackTrace: captureStackTrace(),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		HTTPStatus: http.StatusRequestTimeout,
		StackTrace: captureStackTrace(),
	}
}

// NewExternalError creates an external service error. Collaborator
// unavailability is fatal only for the current operation and never
// corrupts in-memory state.
func NewExternalError(service string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    fmt.Sprintf("external service '%s' error", service),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsVersionConflict checks if an error is a stale-write conflict
func IsVersionConflict(err error) bool {
	return IsType(err, ErrorTypeVersionConflict)
}

// IsLockHeld checks if an error is a lock contention error
func IsLockHeld(err error) bool {
	return IsType(err, ErrorTypeLockHeld)
}

// IsLockExpired checks if an error is a lapsed-lease error
func IsLockExpired(err error) bool {
	return IsType(err, ErrorTypeLockExpired)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	// Otherwise create a new internal error
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
