/*
ledger.go - Append-only record of ad-hoc charges

PURPOSE:
  The Charge Ledger records every extra amount billed outside the
  recurring base fee. Charges are immutable once written; the only
  mutation is hard deletion by id. DRAFT charges are recorded alongside
  REAL ones but never contribute to any computed total.

DURABILITY:
  The ledger write is the unit of durability. External notification
  hooks run AFTER the transaction commits and are fire-and-forget: a
  crash after write but before notification must not replay the charge,
  and a failing hook never unwinds the write.

ID ASSIGNMENT:
  Charge ids are ledger-wide, monotone, and never reused. The id is
  claimed from the persisted counter inside the same transaction as the
  insert, so concurrent appends cannot collide.

SEE ALSO:
  - registry.go: default-account substitution for unassigned charges
  - report.go: consumes REAL charges for owed totals
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

// Hooks carries optional callbacks fired after a successful commit.
// They are fire-and-forget with respect to durability.
type Hooks struct {
	ChargeAppended func(Charge)
}

type Ledger struct {
	store TxStore
	clock Clock
	hooks Hooks
}

func NewLedger(store TxStore, clock Clock) *Ledger {
	return &Ledger{store: store, clock: clock}
}

// WithHooks returns a ledger that fires the given hooks after commits.
func (l *Ledger) WithHooks(h Hooks) *Ledger {
	out := *l
	out.hooks = h
	return &out
}

// AppendInput describes one charge to record.
type AppendInput struct {
	// AccountCode selects the owning account. Empty means "the default
	// account"; ErrNoDefaultAccount if none is configured.
	AccountCode AccountCode

	// Amount must be positive.
	Amount decimal.Decimal

	Label string

	// Class defaults to ChargeReal when empty.
	Class ChargeClass

	// At defaults to the clock's current instant when zero.
	At time.Time
}

// Append validates and records a charge, returning it with its assigned
// id. All validation happens before any mutation.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (Charge, error) {
	if !in.Amount.IsPositive() {
		return Charge{}, fmt.Errorf("%w: %s", ErrInvalidAmount, in.Amount)
	}
	class := in.Class
	if class == "" {
		class = ChargeReal
	}
	if !class.Valid() {
		return Charge{}, fmt.Errorf("%w: %q", ErrInvalidClass, in.Class)
	}
	at := in.At
	if at.IsZero() {
		at = l.clock.Now()
	}

	var created Charge
	err := l.store.WithTx(ctx, func(s Store) error {
		var account Account
		var err error
		if in.AccountCode == "" {
			account, err = defaultIn(ctx, s)
		} else {
			account, err = resolveIn(ctx, s, in.AccountCode)
		}
		if err != nil {
			return err
		}

		id, err := s.NextChargeID(ctx)
		if err != nil {
			return err
		}

		created = Charge{
			ID:          id,
			AccountID:   account.ExternalID,
			At:          at,
			Amount:      in.Amount,
			Label:       in.Label,
			Class:       class,
			AccountName: account.Name,
		}
		return s.AppendCharge(ctx, created)
	})
	if err != nil {
		return Charge{}, err
	}

	if l.hooks.ChargeAppended != nil {
		l.hooks.ChargeAppended(created)
	}
	return created, nil
}

// Remove hard-deletes a charge by id. A missing id returns false, not
// an error: removal is idempotent.
func (l *Ledger) Remove(ctx context.Context, id ChargeID) (bool, error) {
	var removed bool
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		removed, err = s.DeleteCharge(ctx, id)
		return err
	})
	return removed, err
}

// Query returns the charges matching the filter, ordered by id so the
// sequence is deterministic and restartable. Omitting a filter field
// means no restriction on that dimension.
func (l *Ledger) Query(ctx context.Context, f ChargeFilter) ([]Charge, error) {
	return l.store.Charges(ctx, f)
}
