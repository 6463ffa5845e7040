/*
errors.go - Centralized error types for the board core

PURPOSE:
  All sentinel errors in one place. The API layer maps these to HTTP status
  codes; nothing in the core ever panics or returns ad-hoc error strings for
  these conditions.

ERROR CATEGORIES:
  1. Guard violations - workflow mutations attempted in a forbidden state
  2. Not-found        - an order or party absent from the current merge
  3. Store errors     - wrapped database failures (no sentinel, use %w)

Upstream ledger unavailability is deliberately NOT an error category: the
engine degrades it to an empty result set (see engine.go).
*/
package board

import "errors"

var (
	// ErrNotFinalized is returned when an error-workflow mutation targets an
	// order whose overlay is not finalized. No mutation occurs.
	ErrNotFinalized = errors.New("order is not finalized")

	// ErrOrderNotFound is returned when a requested order is absent from the
	// current merge result.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPartyNameRequired is returned when creating a responsible party
	// without a display name.
	ErrPartyNameRequired = errors.New("party name is required")
)

// IsForbidden returns true if the error is a workflow guard violation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotFinalized)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}
