// Package errors provides structured error types for gemmirror.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the engine, CLI and server
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes split failures into the categories a mirror operator cares about:
//   - INVALID_*: configuration and input validation failures
//   - INDEX_REFRESH: the remote index could not be obtained (fatal to a cycle)
//   - ITEM_FAILED: a single fetch or delete failed (recorded, never fatal)
//   - POOL: the job pool rejected work (fatal to a cycle)
//   - LOCKED: another cycle holds the mirror lock
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "parallelism must be positive, got %d", n)
//	if errors.Is(err, errors.ErrCodeInvalidConfig) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIndexRefresh, origErr, "refresh %s", kind)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidArtifact Code = "INVALID_ARTIFACT"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidIndex    Code = "INVALID_INDEX"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Network errors
	ErrCodeNetwork        Code = "NETWORK_ERROR"
	ErrCodeUpstreamStatus Code = "UPSTREAM_STATUS"

	// Reconciliation errors
	ErrCodeIndexRefresh Code = "INDEX_REFRESH"
	ErrCodeItemFailed   Code = "ITEM_FAILED"
	ErrCodePool         Code = "POOL"
	ErrCodeLocked       Code = "LOCKED"
	ErrCodeStorage      Code = "STORAGE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain has the given code, so an
// INDEX_REFRESH failure caused by an INVALID_INDEX payload matches both.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns err as text for humans: the messages of the chain
// joined by ": ", without code prefixes.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return UserMessage(e.Cause)
	}
	return e.Message + ": " + UserMessage(e.Cause)
}

// Join returns an error that wraps the given errors; see the standard
// library errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
