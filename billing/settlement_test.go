package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

func newSettlement(t *testing.T, ids ...string) (*billing.Settlement, *billing.Registry, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	reg := billing.NewRegistry(st, testClock())
	for _, id := range ids {
		_, err := reg.Register(context.Background(), id, "")
		require.NoError(t, err)
	}
	return billing.NewSettlement(st, testClock()), reg, st
}

// =============================================================================
// RECORDING
// =============================================================================

func TestRecord_SingleAccount(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSettlement(t, "a", "b")
	at := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "a", at))

	last, err := s.Last(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(at))

	// The other account never inherits a checkpoint.
	other, err := s.Last(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRecord_ZeroTimestampMeansNow(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSettlement(t, "a")

	require.NoError(t, s.Record(ctx, "a", time.Time{}))

	last, err := s.Last(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(testClock().Now()))
}

func TestRecord_SettleAllCoversActiveAccountsOnly(t *testing.T) {
	// GIVEN: two active accounts and one deactivated
	ctx := context.Background()
	s, reg, _ := newSettlement(t, "a", "b", "c")
	require.NoError(t, reg.Deactivate(ctx, "c"))
	at := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)

	// WHEN: settling everyone
	require.NoError(t, s.Record(ctx, "", at))

	// THEN: active accounts got the checkpoint, the deactivated one did not
	for _, id := range []string{"a", "b"} {
		last, err := s.Last(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, last, id)
		assert.True(t, last.Equal(at))
	}
	last, err := s.Last(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRecord_AccountsRegisteredLaterUnaffected(t *testing.T) {
	ctx := context.Background()
	s, reg, _ := newSettlement(t, "a")
	require.NoError(t, s.Record(ctx, "", time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)))

	_, err := reg.Register(ctx, "later", "")
	require.NoError(t, err)

	last, err := s.Last(ctx, "later")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestHistory_DoubleSettlementKeepsBoth(t *testing.T) {
	// Re-settling is harmless: the maximum governs, history keeps all.
	ctx := context.Background()
	s, _, _ := newSettlement(t, "a")
	t1 := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, time.December, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "a", t2))
	require.NoError(t, s.Record(ctx, "a", t1)) // out of order on purpose

	history, err := s.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Equal(t1))
	assert.True(t, history[1].Equal(t2))

	last, err := s.Last(ctx, "a")
	require.NoError(t, err)
	assert.True(t, last.Equal(t2))
}

// =============================================================================
// TIE-BREAK
// =============================================================================

func TestSettled_CheckpointInclusive(t *testing.T) {
	cp := time.Date(2025, time.December, 3, 12, 0, 0, 0, time.UTC)

	// Exactly at the checkpoint: settled.
	assert.True(t, billing.Settled(cp, &cp))
	// Any instant before: settled.
	assert.True(t, billing.Settled(cp.Add(-time.Nanosecond), &cp))
	// Any instant after: still owed.
	assert.False(t, billing.Settled(cp.Add(time.Nanosecond), &cp))
	// No checkpoint: nothing is settled.
	assert.False(t, billing.Settled(cp, nil))
}

// =============================================================================
// FLOOR COMPUTATION
// =============================================================================

func TestComputeFloor_MaximumOfThree(t *testing.T) {
	global := day(2025, time.November, 24)
	serviceStart := day(2025, time.November, 26)
	cp := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)

	floor := billing.ComputeFloor(global, &serviceStart, &cp, time.UTC)
	assert.True(t, floor.Equal(day(2025, time.December, 1)))

	// Without a checkpoint, the later of floor and service start wins.
	floor = billing.ComputeFloor(global, &serviceStart, nil, time.UTC)
	assert.True(t, floor.Equal(serviceStart))

	// With nothing at all, zero means "no floor".
	floor = billing.ComputeFloor(billing.Day{}, nil, nil, time.UTC)
	assert.True(t, floor.IsZero())
}

func TestComputeFloor_CheckpointDateInOperatingZone(t *testing.T) {
	// A checkpoint late on Dec 3 UTC is already Dec 4 in Dubai.
	dubai := time.FixedZone("GST", 4*3600)
	cp := time.Date(2025, time.December, 3, 22, 0, 0, 0, time.UTC)

	floor := billing.ComputeFloor(billing.Day{}, nil, &cp, dubai)
	assert.True(t, floor.Equal(day(2025, time.December, 4)))
}

func TestUnsettledFloor_ReadsStoredState(t *testing.T) {
	ctx := context.Background()
	s, reg, st := newSettlement(t, "a")
	require.NoError(t, st.SetGlobalFloor(ctx, day(2025, time.November, 24)))
	require.NoError(t, reg.SetServiceStart(ctx, "a", day(2025, time.November, 26)))

	a, err := reg.Resolve(ctx, "a")
	require.NoError(t, err)

	floor, err := s.UnsettledFloor(ctx, a)
	require.NoError(t, err)
	assert.True(t, floor.Equal(day(2025, time.November, 26)))

	require.NoError(t, s.Record(ctx, "a", time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)))
	floor, err = s.UnsettledFloor(ctx, a)
	require.NoError(t, err)
	assert.True(t, floor.Equal(day(2025, time.December, 1)))
}
