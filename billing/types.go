/*
Package billing provides the core billing ledger and period-accounting engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking a
  recurring service relationship: a fixed weekly base fee prorated against
  a working-day calendar, plus ad-hoc extra charges, with checkpointed
  settlement ("what has already been paid") across multiple accounts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A billable party, addressable by external id OR compact alias
  - Charge: An immutable ad-hoc ledger entry, REAL or DRAFT
  - AccountCode: A lookup code resolved external-id-first, then alias
  - ChargeFilter: Query restriction for ledger reads

DESIGN PRINCIPLES:
  1. Immutability: Charges are never edited; only hard-deleted by id
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Dual identity: External ids and aliases are different namespaces
     with a documented resolution precedence (see registry.go)
  4. History: Accounts are soft-removed while charges reference them

SEE ALSO:
  - time.go: Day value type and window helpers
  - ledger.go: Charge append/remove/query
  - registry.go: Account lifecycle and code resolution
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ChargeID is a ledger-wide monotonically increasing charge identifier.
// Ids are never reused, even after a charge is deleted.
type ChargeID int64

// AccountCode is a lookup code for an account. It carries either the
// durable external id or the compact sequential alias; resolution tries
// the external id first, then the alias (see Registry.Resolve). The
// precedence is part of the API contract: the two ranges are not
// guaranteed disjoint, so a deterministic order is required.
type AccountCode string

// =============================================================================
// ACCOUNT - One billable party (e.g., a contracted driver)
// =============================================================================

type Account struct {
	// ExternalID is assigned by the calling environment and immutable.
	ExternalID string

	// Alias is the smallest unused positive integer at registration time.
	Alias int

	Name   string
	Active bool

	// BaseOverride replaces the global weekly base when set and positive.
	BaseOverride *decimal.Decimal

	// ServiceStart raises this account's counting floor: dates before it
	// never accrue base fee or count charges for this account.
	ServiceStart *Day

	// IsDefault marks the account substituted when a charge names none.
	// At most one account is default; the Registry enforces this.
	IsDefault bool

	CreatedAt time.Time
}

// EffectiveBase returns the account's weekly base: the override if set
// and positive, else the global base.
func (a Account) EffectiveBase(globalBase decimal.Decimal) decimal.Decimal {
	if a.BaseOverride != nil && a.BaseOverride.IsPositive() {
		return *a.BaseOverride
	}
	return globalBase
}

// =============================================================================
// CHARGE - One ad-hoc amount billed outside the recurring base fee
// =============================================================================

// ChargeClass separates production entries from rehearsal entries.
// DRAFT charges never contribute to any computed total.
type ChargeClass string

const (
	ChargeReal  ChargeClass = "real"
	ChargeDraft ChargeClass = "draft"
)

// Valid reports whether the class is one of the known values.
func (c ChargeClass) Valid() bool {
	return c == ChargeReal || c == ChargeDraft
}

type Charge struct {
	ID        ChargeID
	AccountID string // external id of the owning account
	At        time.Time
	Amount    decimal.Decimal
	Label     string
	Class     ChargeClass

	// AccountName is a display snapshot taken at creation time.
	// It is NOT authoritative; the Registry owns account names.
	AccountName string
}

// =============================================================================
// CHECKPOINT - A recorded "paid through" instant
// =============================================================================

// Checkpoint marks everything at or before At as settled for one account
// (a charge timestamped exactly at a checkpoint is settled).
type Checkpoint struct {
	AccountID string
	At        time.Time
}

// =============================================================================
// CHARGE FILTER - Query restriction for ledger reads
// =============================================================================

// ChargeFilter restricts a ledger query. A nil field means "no
// restriction on that dimension". From/To bound the charge timestamp
// inclusively.
type ChargeFilter struct {
	AccountID *string
	From      *time.Time
	To        *time.Time
	Class     *ChargeClass
}

// Matches reports whether the charge passes every set restriction.
func (f ChargeFilter) Matches(c Charge) bool {
	if f.AccountID != nil && c.AccountID != *f.AccountID {
		return false
	}
	if f.From != nil && c.At.Before(*f.From) {
		return false
	}
	if f.To != nil && c.At.After(*f.To) {
		return false
	}
	if f.Class != nil && c.Class != *f.Class {
		return false
	}
	return true
}
