// Package wisperr defines the stable error codes shared by every daemon
// component. Codes survive across the wire; messages are for humans.
package wisperr

import (
	"errors"
	"fmt"
)

// Code identifies a failure mode with a stable string.
type Code string

const (
	// ProtocolError indicates a malformed frame. Fatal to the connection.
	ProtocolError Code = "PROTOCOL_ERROR"
	// ValidationError indicates a payload that failed typed decode.
	ValidationError Code = "VALIDATION_ERROR"
	// NotFound indicates an unknown command.
	NotFound Code = "NOT_FOUND"
	// ExecutionError indicates a handler-level failure.
	ExecutionError Code = "EXECUTION_ERROR"
	// MutationRejected indicates an invalid workspace edit. State unchanged.
	MutationRejected Code = "MUTATION_REJECTED"
	// PoolSaturated indicates the dispatch queue is full. Callers may retry.
	PoolSaturated Code = "POOL_SATURATED"
	// Timeout indicates an execution exceeded its deadline.
	Timeout Code = "TIMEOUT"
	// ProviderError indicates a collaborator (embedding provider) failure.
	ProviderError Code = "PROVIDER_ERROR"
	// Cancelled indicates the caller cancelled the request before completion.
	Cancelled Code = "CANCELLED"
	// Unauthorized indicates a missing or invalid session token.
	Unauthorized Code = "UNAUTHORIZED"
	// InternalError indicates an unexpected failure.
	InternalError Code = "INTERNAL_ERROR"
)

// Error carries a stable code, a message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the stable code from any error. Unknown errors map to
// InternalError; nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
