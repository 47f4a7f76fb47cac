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

// testClock pins the tests to Friday 2025-12-05.
func testClock() billing.FixedClock {
	return billing.FixedClock{At: time.Date(2025, time.December, 5, 12, 0, 0, 0, time.UTC)}
}

func newRegistry() (*billing.Registry, *store.TxMemory) {
	st := store.NewTxMemory()
	return billing.NewRegistry(st, testClock()), st
}

// =============================================================================
// REGISTRATION AND ALIASES
// =============================================================================

func TestRegister_FirstAccountGetsAliasOneAndDefault(t *testing.T) {
	// GIVEN: an empty registry
	ctx := context.Background()
	reg, _ := newRegistry()

	// WHEN: registering external id 981113059
	a, err := reg.Register(ctx, "981113059", "Morning run")
	require.NoError(t, err)

	// THEN: alias 1, default, active
	assert.Equal(t, 1, a.Alias)
	assert.True(t, a.IsDefault)
	assert.True(t, a.Active)
}

func TestRegister_AliasIsSmallestUnused(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry()

	a1, err := reg.Register(ctx, "981113059", "")
	require.NoError(t, err)
	a2, err := reg.Register(ctx, "774421000", "")
	require.NoError(t, err)

	assert.Equal(t, 1, a1.Alias)
	assert.Equal(t, 2, a2.Alias)

	// A deactivated account keeps its alias taken.
	require.NoError(t, reg.Deactivate(ctx, "981113059"))
	a3, err := reg.Register(ctx, "555000111", "")
	require.NoError(t, err)
	assert.Equal(t, 3, a3.Alias)
}

func TestRegister_DuplicateExternalIDRejected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry()

	_, err := reg.Register(ctx, "981113059", "")
	require.NoError(t, err)

	_, err = reg.Register(ctx, "981113059", "again")
	assert.ErrorIs(t, err, billing.ErrDuplicateAccount)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_ExternalIDAndAliasNameTheSameAccount(t *testing.T) {
	// GIVEN: one registered account
	ctx := context.Background()
	reg, _ := newRegistry()
	_, err := reg.Register(ctx, "981113059", "Morning run")
	require.NoError(t, err)

	// WHEN: resolving by external id and by alias
	byID, err := reg.Resolve(ctx, "981113059")
	require.NoError(t, err)
	byAlias, err := reg.Resolve(ctx, "1")
	require.NoError(t, err)

	// THEN: both codes name the same account
	assert.Equal(t, byID.ExternalID, byAlias.ExternalID)
}

func TestResolve_ExternalIDTakesPrecedenceOverAlias(t *testing.T) {
	// GIVEN: an account whose external id is numerically a valid alias
	// of ANOTHER account
	ctx := context.Background()
	reg, _ := newRegistry()
	_, err := reg.Register(ctx, "aaa", "first") // alias 1
	require.NoError(t, err)
	_, err = reg.Register(ctx, "1", "tricky") // alias 2, external id "1"
	require.NoError(t, err)

	// WHEN: resolving "1"
	a, err := reg.Resolve(ctx, "1")
	require.NoError(t, err)

	// THEN: the external id match wins over the alias match
	assert.Equal(t, "1", a.ExternalID)
	assert.Equal(t, 2, a.Alias)
}

func TestResolve_UnknownCode(t *testing.T) {
	reg, _ := newRegistry()

	_, err := reg.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// DEFAULT ACCOUNT
// =============================================================================

func TestSetDefault_SingleDefaultInvariant(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry()
	_, err := reg.Register(ctx, "a", "")
	require.NoError(t, err)
	_, err = reg.Register(ctx, "b", "")
	require.NoError(t, err)

	require.NoError(t, reg.SetDefault(ctx, "b"))

	all, err := reg.List(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, a := range all {
		if a.IsDefault {
			defaults++
			assert.Equal(t, "b", a.ExternalID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestDeactivate_DefaultMovesToLowestAliasActive(t *testing.T) {
	// GIVEN: three accounts, the first (default) about to go
	ctx := context.Background()
	reg, _ := newRegistry()
	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Register(ctx, id, "")
		require.NoError(t, err)
	}

	// WHEN: deactivating the default
	require.NoError(t, reg.Deactivate(ctx, "a"))

	// THEN: the lowest-alias remaining active account is the new default
	d, err := reg.DefaultAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", d.ExternalID)

	// AND: the deactivated account keeps its history-facing identity
	old, err := reg.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.False(t, old.IsDefault)
}

func TestDefaultAccount_NoneConfigured(t *testing.T) {
	reg, _ := newRegistry()

	_, err := reg.DefaultAccount(context.Background())
	assert.ErrorIs(t, err, billing.ErrNoDefaultAccount)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestSetBaseOverride_PositiveOnly(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry()
	_, err := reg.Register(ctx, "a", "")
	require.NoError(t, err)

	assert.ErrorIs(t, reg.SetBaseOverride(ctx, "a", dec("0")), billing.ErrInvalidAmount)
	assert.ErrorIs(t, reg.SetBaseOverride(ctx, "a", dec("-5")), billing.ErrInvalidAmount)

	require.NoError(t, reg.SetBaseOverride(ctx, "a", dec("900")))
	a, err := reg.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.EffectiveBase(dec("725")).Equal(dec("900")))

	require.NoError(t, reg.ClearBaseOverride(ctx, "a"))
	a, err = reg.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.EffectiveBase(dec("725")).Equal(dec("725")))
}

func TestSetServiceStart(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry()
	_, err := reg.Register(ctx, "a", "")
	require.NoError(t, err)

	require.NoError(t, reg.SetServiceStart(ctx, "a", day(2025, time.November, 26)))
	a, err := reg.Resolve(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, a.ServiceStart)
	assert.True(t, a.ServiceStart.Equal(day(2025, time.November, 26)))
}
