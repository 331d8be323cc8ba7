// Package errs provides the unified error type used across all of sqlscope.
//
// Every subsystem (connection, guard, query, schema, stats, export, filestore)
// wraps its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates or KindOf to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", sqliteErr)
//
//	// At the operation boundary, report the kind:
//	if errs.IsGuardRejected(err) {
//	    return service.Fail(err), nil
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// The SQLite driver and the MinIO store map their native errors to one
// of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // missing file, no rows, no object
	ErrKindConnectionFailed         // path not openable, backend unreachable
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindSourceError              // the data source rejected or failed a statement
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindNoConnection             // operation needs a bound connection
	ErrKindGuardRejected            // statement refused by the query guard
	ErrKindTableNotFound            // named table absent from the catalog
	ErrKindIOFailure                // destination not writable, upload failed
	ErrKindNotExportable            // statement does not produce a result set
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindSourceError:
		return "source_error"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindNoConnection:
		return "no_connection"
	case ErrKindGuardRejected:
		return "guard_rejected"
	case ErrKindTableNotFound:
		return "table_not_found"
	case ErrKindIOFailure:
		return "io_failure"
	case ErrKindNotExportable:
		return "not_exportable"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlscope subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (missing database file, no rows, missing object, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or open failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsSourceError reports whether the data source failed a statement.
func IsSourceError(err error) bool {
	return KindOf(err) == ErrKindSourceError
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsNoConnection reports whether err was returned because no database is bound.
func IsNoConnection(err error) bool {
	return KindOf(err) == ErrKindNoConnection
}

// IsGuardRejected reports whether the query guard refused the statement.
func IsGuardRejected(err error) bool {
	return KindOf(err) == ErrKindGuardRejected
}

// IsTableNotFound reports whether err names a table missing from the catalog.
func IsTableNotFound(err error) bool {
	return KindOf(err) == ErrKindTableNotFound
}

// IsIOFailure reports whether err is a local or remote write failure.
func IsIOFailure(err error) bool {
	return KindOf(err) == ErrKindIOFailure
}

// IsNotExportable reports whether err was returned for a statement without a result set.
func IsNotExportable(err error) bool {
	return KindOf(err) == ErrKindNotExportable
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// Message returns the human-readable message of the first *Error in the
// chain, falling back to err.Error() for foreign errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
