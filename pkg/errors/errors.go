package errors

import (
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeBadRequest ErrorType = "bad_request"
	// ErrorTypeUnavailable signals that no live instance exists for a service.
	// It is expected and recoverable; the dispatcher converts it to a fallback.
	ErrorTypeUnavailable ErrorType = "unavailable"
	// ErrorTypeAuth signals that the authorization endpoint was unreachable or
	// rejected the client credentials.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeCircuitOpen signals that the route's circuit breaker rejected
	// the call before any downstream work was attempted.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	// ErrorTypeTimeout signals that a downstream call exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeBadGateway signals a downstream connection or protocol failure.
	ErrorTypeBadGateway ErrorType = "bad_gateway"
)

// Error represents a structured error with additional context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]any
}

// NewError creates a new structured error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsType reports whether err is a structured error of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Type == errType
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type
func (e *Error) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeBadRequest:
		return 400
	case ErrorTypeTimeout:
		return 504
	case ErrorTypeUnavailable, ErrorTypeCircuitOpen:
		return 503
	case ErrorTypeAuth, ErrorTypeBadGateway:
		return 502
	default:
		return 500
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
