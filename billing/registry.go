/*
registry.go - Account registry: the set of billable parties

PURPOSE:
  Owns account lifecycle: registration with alias assignment, dual-code
  resolution, the single-default invariant, per-account base overrides
  and service-start dates, and soft removal.

RESOLUTION PRECEDENCE (API contract, not an accident of iteration):
  A code is matched against external ids FIRST, then against aliases.
  External ids and aliases come from different numeric ranges in
  practice but are not guaranteed disjoint, so the precedence is fixed
  here, in one place.

DEFAULT ACCOUNT:
  At most one account is default. The first account ever registered
  becomes default automatically; deactivating the current default
  reassigns the flag to the lowest-alias active account that remains,
  if any. All default mutations go through this file's single mutation
  path - never by convention at call sites.

SOFT REMOVAL:
  Accounts are never hard-deleted while ledger entries reference them;
  Deactivate clears the active flag and history stays intact.

SEE ALSO:
  - ledger.go: substitutes the default account for unassigned charges
  - report.go: uses EffectiveBase and ServiceStart
*/
package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	store TxStore
	clock Clock
}

func NewRegistry(store TxStore, clock Clock) *Registry {
	return &Registry{store: store, clock: clock}
}

// Register creates an account for the given external id. The alias is
// the smallest unused positive integer; the first account ever
// registered becomes the default automatically.
func (r *Registry) Register(ctx context.Context, externalID, name string) (Account, error) {
	if externalID == "" {
		return Account{}, fmt.Errorf("%w: empty external id", ErrAccountNotFound)
	}

	var created Account
	err := r.store.WithTx(ctx, func(s Store) error {
		existing, err := s.AccountByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, externalID)
		}

		all, err := s.ListAccounts(ctx)
		if err != nil {
			return err
		}

		created = Account{
			ExternalID: externalID,
			Alias:      smallestUnusedAlias(all),
			Name:       name,
			Active:     true,
			IsDefault:  len(all) == 0,
			CreatedAt:  r.clock.Now(),
		}
		return s.SaveAccount(ctx, created)
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// smallestUnusedAlias returns the smallest positive integer not already
// assigned. Aliases of deactivated accounts stay taken; history keeps
// pointing at one party.
func smallestUnusedAlias(accounts []Account) int {
	used := make(map[int]bool, len(accounts))
	for _, a := range accounts {
		used[a.Alias] = true
	}
	alias := 1
	for used[alias] {
		alias++
	}
	return alias
}

// Resolve looks up an account by code: external-id match first, then
// alias match. Returns ErrAccountNotFound when neither matches.
func (r *Registry) Resolve(ctx context.Context, code AccountCode) (Account, error) {
	return resolveIn(ctx, r.store, code)
}

func resolveIn(ctx context.Context, s Store, code AccountCode) (Account, error) {
	if code == "" {
		return Account{}, fmt.Errorf("%w: empty code", ErrAccountNotFound)
	}

	// External id takes precedence.
	if a, err := s.AccountByExternalID(ctx, string(code)); err != nil {
		return Account{}, err
	} else if a != nil {
		return *a, nil
	}

	if alias, err := strconv.Atoi(string(code)); err == nil && alias > 0 {
		if a, err := s.AccountByAlias(ctx, alias); err != nil {
			return Account{}, err
		} else if a != nil {
			return *a, nil
		}
	}

	return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
}

// DefaultAccount returns the current default, or ErrNoDefaultAccount.
func (r *Registry) DefaultAccount(ctx context.Context) (Account, error) {
	return defaultIn(ctx, r.store)
}

func defaultIn(ctx context.Context, s Store) (Account, error) {
	all, err := s.ListAccounts(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range all {
		if a.IsDefault {
			return a, nil
		}
	}
	return Account{}, ErrNoDefaultAccount
}

// List returns every account ordered by alias.
func (r *Registry) List(ctx context.Context) ([]Account, error) {
	return r.store.ListAccounts(ctx)
}

// SetDefault makes the resolved account the single default.
func (r *Registry) SetDefault(ctx context.Context, code AccountCode) error {
	return r.store.WithTx(ctx, func(s Store) error {
		target, err := resolveIn(ctx, s, code)
		if err != nil {
			return err
		}

		all, err := s.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range all {
			if a.IsDefault && a.ExternalID != target.ExternalID {
				a.IsDefault = false
				if err := s.SaveAccount(ctx, a); err != nil {
					return err
				}
			}
		}

		target.IsDefault = true
		return s.SaveAccount(ctx, target)
	})
}

// SetBaseOverride sets the per-account weekly base. The amount must be
// positive; rejected before any mutation otherwise.
func (r *Registry) SetBaseOverride(ctx context.Context, code AccountCode, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: base override %s", ErrInvalidAmount, amount)
	}
	return r.update(ctx, code, func(a *Account) {
		a.BaseOverride = &amount
	})
}

// ClearBaseOverride reverts the account to the global weekly base.
func (r *Registry) ClearBaseOverride(ctx context.Context, code AccountCode) error {
	return r.update(ctx, code, func(a *Account) {
		a.BaseOverride = nil
	})
}

// SetServiceStart sets the date before which nothing counts for this
// account.
func (r *Registry) SetServiceStart(ctx context.Context, code AccountCode, d Day) error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero service start", ErrInvalidRange)
	}
	return r.update(ctx, code, func(a *Account) {
		a.ServiceStart = &d
	})
}

// Deactivate soft-removes the account. If it was the default, the flag
// moves to the lowest-alias remaining active account.
func (r *Registry) Deactivate(ctx context.Context, code AccountCode) error {
	return r.store.WithTx(ctx, func(s Store) error {
		target, err := resolveIn(ctx, s, code)
		if err != nil {
			return err
		}

		wasDefault := target.IsDefault
		target.Active = false
		target.IsDefault = false
		if err := s.SaveAccount(ctx, target); err != nil {
			return err
		}

		if !wasDefault {
			return nil
		}
		all, err := s.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range all { // ordered by alias; first active wins
			if a.Active && a.ExternalID != target.ExternalID {
				a.IsDefault = true
				return s.SaveAccount(ctx, a)
			}
		}
		return nil // no active account left; no default
	})
}

// update applies fn to the resolved account inside one transaction.
func (r *Registry) update(ctx context.Context, code AccountCode, fn func(*Account)) error {
	return r.store.WithTx(ctx, func(s Store) error {
		a, err := resolveIn(ctx, s, code)
		if err != nil {
			return err
		}
		fn(&a)
		return s.SaveAccount(ctx, a)
	})
}
