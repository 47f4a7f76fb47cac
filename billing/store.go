/*
store.go - Persistence port for the billing engine

PURPOSE:
  Defines the interface between the domain logic and the datastore. The
  whole billing state (accounts, charges, calendar, checkpoints, floor,
  id counter) persists as one consistent unit behind this port.

IMPLEMENTATIONS:
  - store/sqlite: durable SQLite store (production)
  - billing/store: in-memory reference store (tests/dev)

TRANSACTIONS:
  Every mutating engine operation runs inside TxStore.WithTx, so a
  multi-record change (settle-all, range expansion, charge id claim +
  insert) is all-or-nothing, and concurrent writers serialize through a
  single-writer discipline instead of racing a read-modify-write cycle.

ID ALLOCATION:
  NextChargeID claims and advances the ledger-wide counter. It is called
  inside the same transaction as the charge insert, so two concurrent
  appends can never observe the same id.

SEE ALSO:
  - store/memory.go: reference implementation
  - ../store/sqlite/sqlite.go: durable implementation
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// STORE - The persistence port
// =============================================================================

type Store interface {
	// --- Accounts (owned by the Registry) ---

	// SaveAccount inserts or fully replaces the account keyed by its
	// external id.
	SaveAccount(ctx context.Context, a Account) error

	// AccountByExternalID returns nil (no error) when absent.
	AccountByExternalID(ctx context.Context, externalID string) (*Account, error)

	// AccountByAlias returns nil (no error) when absent.
	AccountByAlias(ctx context.Context, alias int) (*Account, error)

	// ListAccounts returns every account, active or not, ordered by alias.
	ListAccounts(ctx context.Context) ([]Account, error)

	// --- Charges (owned by the Ledger) ---

	// NextChargeID claims the next ledger-wide charge id and advances
	// the persisted counter. Ids are monotone and never reused.
	NextChargeID(ctx context.Context) (ChargeID, error)

	// AppendCharge inserts an immutable charge.
	AppendCharge(ctx context.Context, c Charge) error

	// DeleteCharge hard-deletes by id; false when the id does not exist.
	DeleteCharge(ctx context.Context, id ChargeID) (bool, error)

	// Charges returns matching charges ordered by id ascending.
	Charges(ctx context.Context, f ChargeFilter) ([]Charge, error)

	// --- Exclusion calendar (owned by the CalendarManager) ---

	// AddExclusionDays inserts dates into the exclusion set, absorbing
	// duplicates.
	AddExclusionDays(ctx context.Context, days []Day) error

	// RemoveExclusionDay deletes one date; false when it was not present.
	RemoveExclusionDay(ctx context.Context, d Day) (bool, error)

	// ExclusionDays returns the full set, sorted ascending.
	ExclusionDays(ctx context.Context) ([]Day, error)

	// SaveHolidayRange inserts or updates a range keyed by its id.
	// Updates only ever raise notification flags (false -> true).
	SaveHolidayRange(ctx context.Context, r HolidayRange) error

	// HolidayRanges returns all ranges ordered by start date.
	HolidayRanges(ctx context.Context) ([]HolidayRange, error)

	// --- Checkpoints (owned by the Settlement manager) ---

	// AppendCheckpoint appends to the account's checkpoint list.
	AppendCheckpoint(ctx context.Context, accountID string, at time.Time) error

	// Checkpoints returns the account's checkpoints ascending by time.
	Checkpoints(ctx context.Context, accountID string) ([]time.Time, error)

	// LastCheckpoint returns the account's maximum checkpoint, or nil.
	LastCheckpoint(ctx context.Context, accountID string) (*time.Time, error)

	// --- Counting floor ---

	// GlobalFloor returns the configured floor date, or nil when unset.
	GlobalFloor(ctx context.Context) (*Day, error)

	// SetGlobalFloor records the floor date.
	SetGlobalFloor(ctx context.Context, d Day) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an error
// the transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
