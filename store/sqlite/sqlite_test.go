package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testAccount(externalID string, alias int) billing.Account {
	return billing.Account{
		ExternalID: externalID,
		Alias:      alias,
		Name:       "run " + externalID,
		Active:     true,
		CreatedAt:  time.Date(2025, time.November, 1, 8, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccounts_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	override := decimal.RequireFromString("900")
	start := billing.NewDay(2025, time.November, 26)
	a := testAccount("981113059", 1)
	a.BaseOverride = &override
	a.ServiceStart = &start
	a.IsDefault = true
	require.NoError(t, st.SaveAccount(ctx, a))

	got, err := st.AccountByExternalID(ctx, "981113059")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Alias)
	assert.True(t, got.IsDefault)
	require.NotNil(t, got.BaseOverride)
	assert.True(t, got.BaseOverride.Equal(override))
	require.NotNil(t, got.ServiceStart)
	assert.True(t, got.ServiceStart.Equal(start))
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))

	byAlias, err := st.AccountByAlias(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, byAlias)
	assert.Equal(t, "981113059", byAlias.ExternalID)
}

func TestAccounts_NilFieldsSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveAccount(ctx, testAccount("a", 1)))

	got, err := st.AccountByExternalID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.BaseOverride)
	assert.Nil(t, got.ServiceStart)
}

func TestAccounts_AbsentIsNilNotError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	got, err := st.AccountByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = st.AccountByAlias(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAccounts_ListOrderedByAlias(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveAccount(ctx, testAccount("c", 3)))
	require.NoError(t, st.SaveAccount(ctx, testAccount("a", 1)))
	require.NoError(t, st.SaveAccount(ctx, testAccount("b", 2)))

	all, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].Alias, all[1].Alias, all[2].Alias})
}

func TestAccounts_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := testAccount("a", 1)
	require.NoError(t, st.SaveAccount(ctx, a))

	a.Active = false
	a.Name = "renamed"
	require.NoError(t, st.SaveAccount(ctx, a))

	got, err := st.AccountByExternalID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)
	assert.Equal(t, "renamed", got.Name)

	all, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// CHARGES
// =============================================================================

func TestNextChargeID_MonotoneAcrossCalls(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	id1, err := st.NextChargeID(ctx)
	require.NoError(t, err)
	id2, err := st.NextChargeID(ctx)
	require.NoError(t, err)

	assert.Equal(t, billing.ChargeID(1), id1)
	assert.Equal(t, billing.ChargeID(2), id2)
}

func TestCharges_AppendFilterDelete(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	at := func(d, h int) time.Time {
		return time.Date(2025, time.December, d, h, 0, 0, 0, time.UTC)
	}
	charge := func(id int64, account, amount string, class billing.ChargeClass, when time.Time) billing.Charge {
		return billing.Charge{
			ID:        billing.ChargeID(id),
			AccountID: account,
			Amount:    decimal.RequireFromString(amount),
			Class:     class,
			At:        when,
		}
	}
	require.NoError(t, st.AppendCharge(ctx, charge(1, "a", "40", billing.ChargeReal, at(2, 10))))
	require.NoError(t, st.AppendCharge(ctx, charge(2, "b", "99", billing.ChargeReal, at(3, 10))))
	require.NoError(t, st.AppendCharge(ctx, charge(3, "a", "999", billing.ChargeDraft, at(3, 11))))
	require.NoError(t, st.AppendCharge(ctx, charge(4, "a", "35", billing.ChargeReal, at(4, 10))))

	// Account + class restriction.
	aID := "a"
	real := billing.ChargeReal
	got, err := st.Charges(ctx, billing.ChargeFilter{AccountID: &aID, Class: &real})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, billing.ChargeID(1), got[0].ID)
	assert.Equal(t, billing.ChargeID(4), got[1].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("40")))

	// Inclusive timestamp bounds.
	from, to := at(3, 10), at(4, 10)
	got, err = st.Charges(ctx, billing.ChargeFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// Delete reports presence.
	removed, err := st.DeleteCharge(ctx, 2)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = st.DeleteCharge(ctx, 2)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCharges_TimestampPrecisionSurvives(t *testing.T) {
	// The settlement tie-break needs sub-second instants back intact.
	ctx := context.Background()
	st := newTestStore(t)
	at := time.Date(2025, time.December, 3, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, st.AppendCharge(ctx, billing.Charge{
		ID:        1,
		AccountID: "a",
		Amount:    decimal.RequireFromString("40"),
		Class:     billing.ChargeReal,
		At:        at,
	}))

	got, err := st.Charges(ctx, billing.ChargeFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].At.Equal(at))
}

// =============================================================================
// EXCLUSION CALENDAR
// =============================================================================

func TestExclusionDays_SortedAndDeduplicated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.AddExclusionDays(ctx, []billing.Day{
		billing.NewDay(2025, time.December, 10),
		billing.NewDay(2025, time.December, 3),
		billing.NewDay(2025, time.December, 3), // duplicate absorbed
	}))

	days, err := st.ExclusionDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Equal(billing.NewDay(2025, time.December, 3)))
	assert.True(t, days[1].Equal(billing.NewDay(2025, time.December, 10)))

	removed, err := st.RemoveExclusionDay(ctx, billing.NewDay(2025, time.December, 3))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = st.RemoveExclusionDay(ctx, billing.NewDay(2025, time.December, 3))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestHolidayRanges_FlagsNeverRegress(t *testing.T) {
	// GIVEN: a range whose start reminder already fired
	ctx := context.Background()
	st := newTestStore(t)
	r := billing.HolidayRange{
		ID:                  "hr-1",
		Start:               billing.NewDay(2025, time.December, 20),
		End:                 billing.NewDay(2025, time.December, 27),
		NotifiedOnCreate:    true,
		NotifiedBeforeStart: true,
	}
	require.NoError(t, st.SaveHolidayRange(ctx, r))

	// WHEN: a stale write tries to save the flags as false again
	r.NotifiedBeforeStart = false
	r.NotifiedOnCreate = false
	require.NoError(t, st.SaveHolidayRange(ctx, r))

	// THEN: the persisted flags stay raised
	ranges, err := st.HolidayRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.True(t, ranges[0].NotifiedOnCreate)
	assert.True(t, ranges[0].NotifiedBeforeStart)
	assert.False(t, ranges[0].NotifiedBeforeEnd)
}

func TestHolidayRanges_OrderedByStart(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveHolidayRange(ctx, billing.HolidayRange{
		ID: "later", Start: billing.NewDay(2026, time.March, 1), End: billing.NewDay(2026, time.March, 5),
	}))
	require.NoError(t, st.SaveHolidayRange(ctx, billing.HolidayRange{
		ID: "sooner", Start: billing.NewDay(2025, time.December, 20), End: billing.NewDay(2025, time.December, 27),
	}))

	ranges, err := st.HolidayRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, "sooner", ranges[0].ID)
}

// =============================================================================
// CHECKPOINTS AND FLOOR
// =============================================================================

func TestCheckpoints_SortedWithLast(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	t1 := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, time.December, 3, 9, 0, 0, 500000000, time.UTC)

	// Inserted out of order.
	require.NoError(t, st.AppendCheckpoint(ctx, "a", t2))
	require.NoError(t, st.AppendCheckpoint(ctx, "a", t1))

	cps, err := st.Checkpoints(ctx, "a")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.True(t, cps[0].Equal(t1))
	assert.True(t, cps[1].Equal(t2))

	last, err := st.LastCheckpoint(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(t2))

	// Other accounts see nothing.
	last, err = st.LastCheckpoint(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestGlobalFloor_UnsetThenSet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	floor, err := st.GlobalFloor(ctx)
	require.NoError(t, err)
	assert.Nil(t, floor)

	require.NoError(t, st.SetGlobalFloor(ctx, billing.NewDay(2025, time.November, 24)))
	require.NoError(t, st.SetGlobalFloor(ctx, billing.NewDay(2025, time.November, 25))) // overwrite

	floor, err = st.GlobalFloor(ctx)
	require.NoError(t, err)
	require.NotNil(t, floor)
	assert.True(t, floor.Equal(billing.NewDay(2025, time.November, 25)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: a transaction that claims an id, writes a charge, then fails
	ctx := context.Background()
	st := newTestStore(t)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(s billing.Store) error {
		id, err := s.NextChargeID(ctx)
		if err != nil {
			return err
		}
		if err := s.AppendCharge(ctx, billing.Charge{
			ID:        id,
			AccountID: "a",
			Amount:    decimal.RequireFromString("40"),
			Class:     billing.ChargeReal,
			At:        time.Date(2025, time.December, 2, 10, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: neither the charge nor the counter advance survive
	charges, err := st.Charges(ctx, billing.ChargeFilter{})
	require.NoError(t, err)
	assert.Empty(t, charges)

	id, err := st.NextChargeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, billing.ChargeID(1), id)
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	// Account resolution and id claims run inside the same transaction as
	// the writes they depend on.
	ctx := context.Background()
	st := newTestStore(t)

	err := st.WithTx(ctx, func(s billing.Store) error {
		if err := s.SaveAccount(ctx, testAccount("a", 1)); err != nil {
			return err
		}
		got, err := s.AccountByExternalID(ctx, "a")
		if err != nil {
			return err
		}
		if got == nil {
			return errors.New("write not visible inside its own transaction")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReset_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveAccount(ctx, testAccount("a", 1)))
	require.NoError(t, st.SetGlobalFloor(ctx, billing.NewDay(2025, time.November, 24)))
	_, err := st.NextChargeID(ctx)
	require.NoError(t, err)

	require.NoError(t, st.Reset(ctx))

	all, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	floor, err := st.GlobalFloor(ctx)
	require.NoError(t, err)
	assert.Nil(t, floor)
	id, err := st.NextChargeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, billing.ChargeID(1), id)
}
