/*
settlement.go - Checkpointed settlement: "paid through" markers

PURPOSE:
  Records per-account checkpoint timestamps. The maximum checkpoint is
  the account's "last payment"; everything at or before it is settled.
  The unsettled floor derived here is the single source of truth the
  report builder clamps against - weekly, monthly, and yearly reports
  all honor the same checkpoints; there is no per-report-type state.

TIE-BREAK (fixed by design):
  A charge timestamped exactly at a checkpoint is settled: "<=" excludes
  it from every owed computation. See Settled.

SETTLE-ALL:
  Recording without an account appends the same timestamp to every
  account active at call time, atomically. Accounts registered later
  are unaffected.

SEE ALSO:
  - report.go: consumes UnsettledFloor and Settled
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// SETTLEMENT MANAGER
// =============================================================================

type Settlement struct {
	store TxStore
	clock Clock
}

func NewSettlement(store TxStore, clock Clock) *Settlement {
	return &Settlement{store: store, clock: clock}
}

// Record appends a checkpoint. With a code it settles one account; with
// an empty code it settles every account active at call time, in one
// transaction. A zero timestamp means "now".
func (s *Settlement) Record(ctx context.Context, code AccountCode, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}

	return s.store.WithTx(ctx, func(st Store) error {
		if code != "" {
			a, err := resolveIn(ctx, st, code)
			if err != nil {
				return err
			}
			return st.AppendCheckpoint(ctx, a.ExternalID, at)
		}

		// Settle all: the account set is captured once, here.
		all, err := st.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range all {
			if !a.Active {
				continue
			}
			if err := st.AppendCheckpoint(ctx, a.ExternalID, at); err != nil {
				return err
			}
		}
		return nil
	})
}

// Last returns the account's most recent checkpoint, or nil when the
// account has never been settled. Accounts never inherit another
// account's checkpoints.
func (s *Settlement) Last(ctx context.Context, accountID string) (*time.Time, error) {
	return s.store.LastCheckpoint(ctx, accountID)
}

// History returns the account's full checkpoint list, ascending.
func (s *Settlement) History(ctx context.Context, accountID string) ([]time.Time, error) {
	return s.store.Checkpoints(ctx, accountID)
}

// UnsettledFloor returns the first date that may still be billed for
// the account: the maximum of the global floor, the account's service
// start, and the date of its last checkpoint. A zero result means
// "no floor".
func (s *Settlement) UnsettledFloor(ctx context.Context, a Account) (Day, error) {
	global, err := s.store.GlobalFloor(ctx)
	if err != nil {
		return Day{}, err
	}
	last, err := s.store.LastCheckpoint(ctx, a.ExternalID)
	if err != nil {
		return Day{}, err
	}

	var floor Day
	if global != nil {
		floor = *global
	}
	return ComputeFloor(floor, a.ServiceStart, last, s.clock.Location()), nil
}

// ComputeFloor is the pure floor computation:
// max(globalFloor, serviceStart, lastCheckpoint-as-date). Zero inputs
// act as minus infinity.
func ComputeFloor(globalFloor Day, serviceStart *Day, lastCheckpoint *time.Time, loc *time.Location) Day {
	floor := globalFloor
	if serviceStart != nil {
		floor = MaxDay(floor, *serviceStart)
	}
	if lastCheckpoint != nil {
		floor = MaxDay(floor, DayOf(*lastCheckpoint, loc))
	}
	return floor
}

// Settled reports whether a charge timestamp is covered by the given
// checkpoint. The boundary is checkpoint-inclusive: at == checkpoint
// means settled.
func Settled(at time.Time, lastCheckpoint *time.Time) bool {
	return lastCheckpoint != nil && !at.After(*lastCheckpoint)
}
