/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy:
    1. Validation errors - rejected before any mutation
    2. Not-found errors  - unknown account or charge
    3. Configuration errors - fatal at the point of use
  State inconsistencies (a charge referencing a removed account) are NOT
  errors: the report builder routes them to a synthetic "unknown account"
  bucket instead of failing the report.

USAGE:
  if errors.Is(err, billing.ErrAccountNotFound) { ... }
  if billing.IsClientError(err) { respond 400 }

SEE ALSO:
  - ledger.go, registry.go, settlement.go: produce these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a charge or base override amount
	// is zero or negative. Rejected before any mutation.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrInvalidRange is returned when a holiday range or report window
	// has its end before its start where that is an input error.
	// (A report window entirely in the future is NOT an error; the
	// builder returns a "not yet active" result instead.)
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrInvalidClass is returned for a charge classification outside
	// {real, draft}.
	ErrInvalidClass = errors.New("invalid charge class")

	// ErrAccountNotFound is returned when a code resolves to no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrChargeNotFound is returned when a charge id does not exist.
	// Ledger.Remove deliberately does NOT return this; removal of a
	// missing id is an idempotent false, not an error.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrDuplicateAccount is returned when registering an external id
	// that already exists.
	ErrDuplicateAccount = errors.New("account already registered")

	// ErrNoDefaultAccount is returned when a charge names no account and
	// no default account is configured.
	ErrNoDefaultAccount = errors.New("no default account configured")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ConfigError is a fatal configuration problem, surfaced immediately at
// the point of use and never deferred (e.g. working-days-per-week <= 0).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrChargeNotFound)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidClass) ||
		errors.Is(err, ErrDuplicateAccount) ||
		errors.Is(err, ErrNoDefaultAccount)
}
