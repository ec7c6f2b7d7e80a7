// errors.go defines sentinel errors for store operations.
//
// Separated to centralise error definitions. These errors are used with
// errors.Is() for type-safe error checking; detailed messages are provided
// by wrapping them with fmt.Errorf at the call site.
//
// The categories mirror the propagation policy: ErrVersionConflict and
// ErrValidation are surfaced synchronously to the caller, while
// ErrStoreUnavailable-class failures on derived stores become sync debt.

package store

import "errors"

var (
	// ErrNotFound indicates the requested document, version, or record
	// does not exist. Callers should check for this to distinguish missing
	// data from other errors.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a concurrent commit race: another writer
	// committed a version for the same document first. The caller is
	// expected to re-read current state and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrValidation indicates malformed input. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrDocumentDeleted indicates a commit was attempted against a
	// soft-deleted document. Use Restore first.
	ErrDocumentDeleted = errors.New("document is deleted")

	// ErrStoreUnavailable indicates a transient store outage. Retryable
	// with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)
