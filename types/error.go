package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the delivery pipeline.
type ErrorCode string

// Construction-time error codes
const (
	ErrConfiguration ErrorCode = "CONFIGURATION"
)

// Delivery error codes
const (
	ErrTransport     ErrorCode = "TRANSPORT"
	ErrProtocol      ErrorCode = "PROTOCOL"
	ErrNoServers     ErrorCode = "NO_SERVERS"
	ErrBatchReleased ErrorCode = "BATCH_RELEASED"
	ErrMixedTarget   ErrorCode = "MIXED_TARGET"
)

// Provisioning error codes
const (
	ErrSetupStep ErrorCode = "SETUP_STEP"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// NewConfigurationError reports a fatal construction-time problem.
func NewConfigurationError(format string, args ...any) *Error {
	return NewError(ErrConfiguration, fmt.Sprintf(format, args...))
}

// NewTransportError wraps a request-build or I/O failure.
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message).WithCause(cause)
}

// NewProtocolError reports a non-success status or structural error content.
func NewProtocolError(status int, message string) *Error {
	return NewError(ErrProtocol, message).WithHTTPStatus(status)
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any error in the chain carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsConfigurationError reports whether err is a fatal configuration error.
func IsConfigurationError(err error) bool {
	return IsErrorCode(err, ErrConfiguration)
}
