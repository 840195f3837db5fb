// Package errors provides structured error types for refcheck.
//
// This package defines error codes and types that enable:
//   - Consistent handling of startup, lifecycle and per-dependency failures
//   - Machine-readable error codes that survive the sandbox worker channel
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Classes
//
// Codes fall into three classes:
//   - Startup: the root artifact is missing, unreadable or not a valid binary.
//     These abort before any scanning and map to exit code 2.
//   - Local: a single dependency could not be found or evaluated. These are
//     folded into the overall verdict and never abort a traversal.
//   - Fatal: the isolation facility, configuration or the wait itself failed.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeArtifactNotFound, "artifact %s does not exist", path)
//	if errors.Is(err, errors.ErrCodeArtifactNotFound) {
//	    // Handle missing artifact
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeContextLifecycle, origErr, "sandbox for %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Startup errors
	ErrCodeArtifactNotFound   Code = "ARTIFACT_NOT_FOUND"
	ErrCodeArtifactUnreadable Code = "ARTIFACT_UNREADABLE"
	ErrCodeInvalidFormat      Code = "INVALID_FORMAT"

	// Per-dependency errors
	ErrCodeDependencyNotFound Code = "DEPENDENCY_NOT_FOUND"
	ErrCodeEvaluation         Code = "EVALUATION_FAILED"

	// Environment errors
	ErrCodeContextLifecycle Code = "CONTEXT_LIFECYCLE"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeTimeout          Code = "TIMEOUT"

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

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsStartup reports whether err means the root artifact could not be opened
// at all. Such errors are reported before any scanning takes place.
func IsStartup(err error) bool {
	switch GetCode(err) {
	case ErrCodeArtifactNotFound, ErrCodeArtifactUnreadable, ErrCodeInvalidFormat:
		return true
	}
	return false
}
