/*
errors.go - Centralized error types for the reconciliation core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The reconcilers convert these into user-facing notifications at the
  operation boundary; nothing in this package panics.

ERROR CATEGORIES:
  1. Not-found errors - Expected; drive find-or-create fallbacks
  2. Store errors - Any failure from the underlying store
  3. Invariant violations - Unexpected store state (e.g. two invoices
     for one work type)

USAGE:
  if ledger.IsNotFound(err) {
      // proceed to create
  }

SEE ALSO:
  - store.go: Interfaces whose implementations return these errors
  - invoicing: Operation boundaries that convert errors to notifications
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a lookup matches no record. Expected
	// for find-or-create paths; callers decide whether it is fatal.
	ErrNotFound = errors.New("not found")

	// ErrWorkerNotFound is returned when a worker id resolves to nothing.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrConcurrentModification is returned when an optimistic ledger
	// replace detects that the document changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnexpectedState is returned when the store holds data that
	// violates a core invariant (e.g. multiple invoices per work type).
	ErrUnexpectedState = errors.New("unexpected store state")

	// ErrMissingField is returned when a required input field is absent.
	ErrMissingField = errors.New("missing required field")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps a failure from the underlying store with the
// operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// MultipleRowsError reports that a single-row lookup matched more than
// one row. This is treated as fatal for the operation, never resolved by
// silently picking one row.
type MultipleRowsError struct {
	Table string
	Key   string
	Count int
}

func (e *MultipleRowsError) Error() string {
	return fmt.Sprintf("%s: expected at most one row for %s, found %d", e.Table, e.Key, e.Count)
}

func (e *MultipleRowsError) Unwrap() error { return ErrUnexpectedState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrWorkerNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
