// Package errors provides error handling for the clinical data repository.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and details, and error marks. On top of that it
// defines the persistence issue taxonomy surfaced to callers of the
// persistence services:
//
//	ArgumentError            invalid caller input, raised before any transaction
//	NotFoundError            a referenced key or version does not exist
//	ValidationError          fatal business-rule findings
//	ConstraintViolation      a backing-store rejection translated from a vendor code
//	GeneralPersistenceError  anything the translator could not classify
//
// Usage:
//
//	if err := svc.Update(ctx, act, persistence.ModeCommit, actor); err != nil {
//	    if errors.IsConstraintViolation(err) {
//	        // inspect the issue
//	    }
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
	Mark         = crdb.Mark
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
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to an error, if any.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinels for the persistence taxonomy. Use them with Is; the constructors
// below mark wrapped errors with the matching sentinel.
var (
	// ErrNotFound indicates a referenced key or version does not exist
	ErrNotFound = New("not found")

	// ErrInvalidArgument indicates null, empty or otherwise invalid caller input
	ErrInvalidArgument = New("invalid argument")

	// ErrConflict indicates a write lost a race against another writer
	ErrConflict = New("conflict")

	// ErrValidation indicates fatal business-rule findings
	ErrValidation = New("validation failed")

	// ErrConstraint indicates the backing store rejected a write
	ErrConstraint = New("constraint violation")

	// ErrPersistence is the catch-all for untranslatable store failures
	ErrPersistence = New("persistence failure")
)

// NewArgumentError creates an argument error with a formatted message.
func NewArgumentError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidArgument)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewConflictError creates a conflict error with a formatted message.
func NewConflictError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConflict)
}

// NewGeneralPersistenceError wraps an untranslatable error.
func NewGeneralPersistenceError(err error, context string) error {
	return Mark(Wrap(err, context), ErrPersistence)
}

// IsArgumentError checks if an error is marked as an argument error
func IsArgumentError(err error) bool {
	return err != nil && Is(err, ErrInvalidArgument)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsGeneralPersistenceError checks if an error is marked as a general persistence failure
func IsGeneralPersistenceError(err error) bool {
	return err != nil && Is(err, ErrPersistence)
}

// IsTaxonomyError reports whether err already belongs to the persistence
// taxonomy and needs no further translation.
func IsTaxonomyError(err error) bool {
	return err != nil && IsAny(err,
		ErrNotFound, ErrInvalidArgument, ErrConflict,
		ErrValidation, ErrConstraint, ErrPersistence)
}
