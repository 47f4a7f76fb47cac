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

func newLedgerWithAccounts(t *testing.T, ids ...string) (*billing.Ledger, *billing.Registry, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	reg := billing.NewRegistry(st, testClock())
	for _, id := range ids {
		_, err := reg.Register(context.Background(), id, "")
		require.NoError(t, err)
	}
	return billing.NewLedger(st, testClock()), reg, st
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppend_AssignsMonotoneIDs(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	c1, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40")})
	require.NoError(t, err)
	c2, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("35")})
	require.NoError(t, err)

	assert.Equal(t, billing.ChargeID(1), c1.ID)
	assert.Equal(t, billing.ChargeID(2), c2.ID)
}

func TestAppend_IDsNeverReusedAfterDelete(t *testing.T) {
	// GIVEN: a charge that gets removed
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	c1, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40")})
	require.NoError(t, err)
	removed, err := ledger.Remove(ctx, c1.ID)
	require.NoError(t, err)
	require.True(t, removed)

	// WHEN: appending again
	c2, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("35")})
	require.NoError(t, err)

	// THEN: the freed id is not recycled
	assert.Greater(t, int64(c2.ID), int64(c1.ID))
}

func TestAppend_EmptyCodeUsesDefaultAccount(t *testing.T) {
	// GIVEN: two accounts, the second set as default
	ctx := context.Background()
	ledger, reg, _ := newLedgerWithAccounts(t, "a", "b")
	require.NoError(t, reg.SetDefault(ctx, "b"))

	// WHEN: appending with no account code
	c, err := ledger.Append(ctx, billing.AppendInput{Amount: dec("40")})
	require.NoError(t, err)

	// THEN: the charge lands on the default account
	assert.Equal(t, "b", c.AccountID)
}

func TestAppend_NoDefaultConfigured(t *testing.T) {
	ctx := context.Background()
	st := store.NewTxMemory()
	ledger := billing.NewLedger(st, testClock())

	_, err := ledger.Append(ctx, billing.AppendInput{Amount: dec("40")})
	assert.ErrorIs(t, err, billing.ErrNoDefaultAccount)
}

func TestAppend_ValidationBeforeMutation(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	_, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("0")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("-5")})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)

	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("5"), Class: "pretend"})
	assert.ErrorIs(t, err, billing.ErrInvalidClass)

	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "ghost", Amount: dec("5")})
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)

	// Nothing was written by any rejected append.
	charges, err := ledger.Query(ctx, billing.ChargeFilter{})
	require.NoError(t, err)
	assert.Empty(t, charges)
}

func TestAppend_DefaultsClassToRealAndAtToNow(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	c, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40")})
	require.NoError(t, err)

	assert.Equal(t, billing.ChargeReal, c.Class)
	assert.True(t, c.At.Equal(testClock().Now()))
}

func TestAppend_FiresHookAfterCommit(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	var got []billing.Charge
	hooked := ledger.WithHooks(billing.Hooks{ChargeAppended: func(c billing.Charge) { got = append(got, c) }})

	c, err := hooked.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)

	// A rejected append never reaches the hook.
	_, err = hooked.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("0")})
	require.Error(t, err)
	assert.Len(t, got, 1)
}

// =============================================================================
// REMOVE
// =============================================================================

func TestRemove_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	c, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40")})
	require.NoError(t, err)

	removed, err := ledger.Remove(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = ledger.Remove(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

// =============================================================================
// QUERY
// =============================================================================

func TestQuery_FiltersAndOrder(t *testing.T) {
	// GIVEN: charges across two accounts and both classes
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a", "b")

	at := func(d int) time.Time {
		return time.Date(2025, time.December, d, 10, 0, 0, 0, time.UTC)
	}
	_, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("40"), At: at(2)})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "b", Amount: dec("99"), At: at(3)})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("999"), Class: billing.ChargeDraft, At: at(3)})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("35"), At: at(4)})
	require.NoError(t, err)

	// WHEN: querying account a, REAL only
	aID := "a"
	real := billing.ChargeReal
	charges, err := ledger.Query(ctx, billing.ChargeFilter{AccountID: &aID, Class: &real})
	require.NoError(t, err)

	// THEN: the draft rehearsal entry is absent; order is by id
	require.Len(t, charges, 2)
	assert.True(t, charges[0].Amount.Equal(dec("40")))
	assert.True(t, charges[1].Amount.Equal(dec("35")))
	assert.Less(t, int64(charges[0].ID), int64(charges[1].ID))

	// AND: timestamp bounds are inclusive
	from, to := at(3), at(4)
	bounded, err := ledger.Query(ctx, billing.ChargeFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, bounded, 3)
}

func TestQuery_DraftRecordedButSeparate(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedgerWithAccounts(t, "a")

	_, err := ledger.Append(ctx, billing.AppendInput{AccountCode: "a", Amount: dec("999"), Class: billing.ChargeDraft})
	require.NoError(t, err)

	draft := billing.ChargeDraft
	drafts, err := ledger.Query(ctx, billing.ChargeFilter{Class: &draft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, billing.ChargeDraft, drafts[0].Class)
}
