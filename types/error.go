package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Execution error codes
const (
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrInvalidInputs    ErrorCode = "INVALID_INPUTS"
	ErrInvalidOutputs   ErrorCode = "INVALID_OUTPUTS"
	ErrInvalidState     ErrorCode = "INVALID_STATE"
	ErrNodeExecution    ErrorCode = "NODE_EXECUTION"
	ErrNodeCancelled    ErrorCode = "NODE_CANCELLED"
	ErrProviderError    ErrorCode = "PROVIDER_ERROR"
	ErrUserDefinedError ErrorCode = "USER_DEFINED_ERROR"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

var knownCodes = map[ErrorCode]struct{}{
	ErrTimeout:          {},
	ErrInvalidInputs:    {},
	ErrInvalidOutputs:   {},
	ErrInvalidState:     {},
	ErrNodeExecution:    {},
	ErrNodeCancelled:    {},
	ErrProviderError:    {},
	ErrUserDefinedError: {},
	ErrInternalError:    {},
}

// Valid reports whether c belongs to the closed set of error codes.
func (c ErrorCode) Valid() bool {
	_, ok := knownCodes[c]
	return ok
}

// ParseErrorCode converts a string into a known ErrorCode.
func ParseErrorCode(s string) (ErrorCode, error) {
	c := ErrorCode(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown error code %q", s)
	}
	return c, nil
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WrapError converts any error into a *Error. Errors that already carry a code keep
// it; everything else gets the fallback code.
func WrapError(err error, fallback ErrorCode) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return &Error{Code: fallback, Message: err.Error(), Cause: err}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
