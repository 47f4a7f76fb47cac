/*
engine.go - Wiring facade for the billing engine

PURPOSE:
  Assembles the Registry, Ledger, Settlement, CalendarManager,
  ReportBuilder, and Sweeper over one shared store and clock. The API
  layer and the tests talk to this facade instead of wiring six
  components by hand.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE CONFIG
// =============================================================================

// Config carries the operating parameters. Zero-valued optional fields
// fall back to the documented defaults in New.
type Config struct {
	// WeeklyBase is the global recurring fee per week. Must be positive.
	WeeklyBase decimal.Decimal

	// WorkingWeekdays defaults to Monday through Friday.
	WorkingWeekdays []time.Weekday

	// Location is the operating timezone. Defaults to UTC.
	Location *time.Location

	// NotifyOffsetDays is how many days before a holiday boundary the
	// reminder fires. Defaults to 2.
	NotifyOffsetDays int

	// Notifier receives holiday boundary events. Defaults to LogNotifier.
	Notifier Notifier

	// Clock overrides the wall clock (tests). Defaults to a ZoneClock
	// for Location.
	Clock Clock
}

const defaultNotifyOffsetDays = 2

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the assembled billing system.
type Engine struct {
	Registry   *Registry
	Ledger     *Ledger
	Settlement *Settlement
	Calendar   *CalendarManager
	Reports    *ReportBuilder
	Sweeper    *Sweeper

	store TxStore
	clock Clock
}

// New assembles an engine over the given store.
func New(store TxStore, cfg Config) (*Engine, error) {
	if !cfg.WeeklyBase.IsPositive() {
		return nil, &ConfigError{Field: "weekly_base", Reason: "must be positive"}
	}

	weekdays := cfg.WorkingWeekdays
	if len(weekdays) == 0 {
		weekdays = DefaultWorkingWeekdays
	}
	prorator, err := NewProrator(weekdays)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ZoneClock{Loc: loc}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	offset := cfg.NotifyOffsetDays
	if offset == 0 {
		offset = defaultNotifyOffsetDays
	}

	return &Engine{
		Registry:   NewRegistry(store, clock),
		Ledger:     NewLedger(store, clock),
		Settlement: NewSettlement(store, clock),
		Calendar:   NewCalendarManager(store, notifier),
		Reports:    NewReportBuilder(store, prorator, clock, cfg.WeeklyBase),
		Sweeper:    NewSweeper(store, clock, notifier, offset),
		store:      store,
		clock:      clock,
	}, nil
}

// Clock returns the engine's clock.
func (e *Engine) Clock() Clock { return e.clock }

// SetGlobalFloor records the date before which nothing is ever counted.
func (e *Engine) SetGlobalFloor(ctx context.Context, d Day) error {
	if d.IsZero() {
		return &ConfigError{Field: "global_floor", Reason: "zero date"}
	}
	return e.store.WithTx(ctx, func(s Store) error {
		return s.SetGlobalFloor(ctx, d)
	})
}

// GlobalFloor returns the recorded floor, or nil when unset.
func (e *Engine) GlobalFloor(ctx context.Context) (*Day, error) {
	return e.store.GlobalFloor(ctx)
}
