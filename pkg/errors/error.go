// Package errors provides structured error handling with typed error codes.
//
// Every error returned synchronously by a connector operation is an *Error. Exchange outcomes
// (rejections, fills, cancel rejects) are never reported through this package; they travel as
// events on the connector's event channel.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, orders, instruments and configuration
//   - Connector lifecycle errors (200-299): Run/Stop ordering, instrument registration, routing
//   - Channel errors (300-399): Event channel closed
//   - Order tracking errors (400-499): Duplicate ids, unknown orders, illegal transitions
//   - Transport errors (500-599): Request and stream failures, timeouts
//   - Journal errors (600-699): Event journal persistence failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeUnknownInstrument, "instrument %s is not registered", symbol)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeRequestFailed, "failed to reach exchange", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeChannelClosed) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsInternal reports whether err is a connector-internal failure produced by this module.
// Errors that carry no *Error in their chain are not classified and return false.
func IsInternal(err error) bool {
	var e *Error

	return errors.As(err, &e)
}

// IsRetryable reports whether the failure is transient and the operation may be retried
// without changing the request.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeRequestFailed, ErrCodeStreamFailed, ErrCodeTimeout:
		return true
	default:
		return false
	}
}
