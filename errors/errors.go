// Package errors provides error handling for blogpulse.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and details, and defines the scheduling error
// taxonomy used across the engine:
//
//	ValidationError  - malformed series spec, rejected before it reaches a store
//	NotFoundError    - unknown series or job ID
//	ConflictError    - duplicate concurrent job attempt, or a state that forbids the operation
//	GenerationError  - external gateway failure, carries a retryable flag
//	TimeoutError     - gateway deadline exceeded (a retryable GenerationError)
//
// Usage:
//
//	if strings.TrimSpace(spec.Topic) == "" {
//	    return errors.NewValidationError("topic cannot be empty")
//	}
//
//	if errors.IsConflictError(err) {
//	    // already generating, skip
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
	Mark           = crdb.Mark
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the scheduling taxonomy.
// Use these with errors.Is() and wrap them to add context while preserving the type.
var (
	// ErrValidation indicates a malformed series spec
	ErrValidation = New("validation failed")

	// ErrNotFound indicates the referenced series or job does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a duplicate concurrent job attempt or a forbidden state transition
	ErrConflict = New("conflict")

	// ErrTimeout indicates a gateway call exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrServiceUnavailable indicates a required collaborator is not configured
	ErrServiceUnavailable = New("service unavailable")
)

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConflict)
}

// IsValidationError checks if an error is or wraps a validation error
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is or wraps a not-found error
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps a conflict error
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsTimeoutError checks if an error is or wraps a timeout error
func IsTimeoutError(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}
