/*
report.go - Period report builder: "how much is currently owed"

PURPOSE:
  Composes the Proration Engine, the Charge Ledger, and the Settlement
  manager into a single owed-amount result for a requested window, for
  one account or for all accounts combined.

CLAMPING:
  - windowStart is clamped UP to the unsettled floor (per-account when
    an account is given; the global/calendar floor only for a combined
    report - a combined report never applies any single account's
    checkpoint to the window).
  - windowEnd is clamped DOWN to today: no report claims future working
    days as incurred.
  - An inverted clamped window yields an explicit NotYetActive result,
    distinct from a zero-filled report.

CHARGES:
  Only REAL charges count. Within a combined report each charge is still
  individually excluded when covered by its own account's checkpoint.
  Charges referencing an unknown account never fail the report; they go
  to a synthetic "unknown account" bucket.

DETERMINISM:
  Two calls with identical stored state and identical clock produce
  byte-identical results: sections sort by alias (unknown bucket last),
  charges by id, and totals never depend on map iteration order.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// AccountSection is one account's share of a report.
type AccountSection struct {
	AccountID string
	Alias     int
	Name      string

	// Unknown marks the synthetic bucket for charges whose account no
	// longer resolves.
	Unknown bool

	WorkingDays int
	Base        decimal.Decimal

	Charges     []Charge
	ChargeTotal decimal.Decimal

	Total decimal.Decimal
}

// Report is the computed owed-amount result for one window.
type Report struct {
	AccountCode AccountCode // empty for a combined report

	RequestedStart Day
	RequestedEnd   Day
	WindowStart    Day // after clamping
	WindowEnd      Day // after clamping

	// NotYetActive distinguishes "period hasn't started" from "nothing
	// owed": set when clamping inverted the window.
	NotYetActive bool

	Sections []AccountSection

	BaseTotal   decimal.Decimal
	ChargeTotal decimal.Decimal
	GrandTotal  decimal.Decimal
}

// =============================================================================
// REPORT BUILDER
// =============================================================================

type ReportBuilder struct {
	store      Store
	prorator   *Prorator
	clock      Clock
	globalBase decimal.Decimal
}

func NewReportBuilder(store Store, prorator *Prorator, clock Clock, globalBase decimal.Decimal) *ReportBuilder {
	return &ReportBuilder{store: store, prorator: prorator, clock: clock, globalBase: globalBase}
}

// Build computes the report for [start, end]. An empty code builds the
// combined all-accounts report.
func (b *ReportBuilder) Build(ctx context.Context, code AccountCode, start, end Day) (Report, error) {
	if code == "" {
		return b.buildCombined(ctx, start, end)
	}
	return b.buildAccount(ctx, code, start, end)
}

// BuildSinceSettlement computes the report for the still-unsettled
// window: from the unsettled floor through today.
func (b *ReportBuilder) BuildSinceSettlement(ctx context.Context, code AccountCode) (Report, error) {
	today := Today(b.clock)
	start, err := b.sinceStart(ctx, code)
	if err != nil {
		return Report{}, err
	}
	return b.Build(ctx, code, start, today)
}

// sinceStart picks the start of a "since last settlement" window: the
// applicable floor when one exists, else the earliest recorded charge
// day, else today.
func (b *ReportBuilder) sinceStart(ctx context.Context, code AccountCode) (Day, error) {
	global, err := b.store.GlobalFloor(ctx)
	if err != nil {
		return Day{}, err
	}

	floor := Day{}
	filter := ChargeFilter{}
	if code != "" {
		a, err := resolveIn(ctx, b.store, code)
		if err != nil {
			return Day{}, err
		}
		last, err := b.store.LastCheckpoint(ctx, a.ExternalID)
		if err != nil {
			return Day{}, err
		}
		var g Day
		if global != nil {
			g = *global
		}
		floor = ComputeFloor(g, a.ServiceStart, last, b.clock.Location())
		filter.AccountID = &a.ExternalID
	} else if global != nil {
		floor = *global
	}
	if !floor.IsZero() {
		return floor, nil
	}

	charges, err := b.store.Charges(ctx, filter)
	if err != nil {
		return Day{}, err
	}
	if len(charges) > 0 {
		earliest := DayOf(charges[0].At, b.clock.Location())
		for _, c := range charges[1:] {
			earliest = MinDay(earliest, DayOf(c.At, b.clock.Location()))
		}
		return earliest, nil
	}
	return Today(b.clock), nil
}

// =============================================================================
// ACCOUNT-SCOPED REPORT
// =============================================================================

func (b *ReportBuilder) buildAccount(ctx context.Context, code AccountCode, reqStart, reqEnd Day) (Report, error) {
	account, err := resolveIn(ctx, b.store, code)
	if err != nil {
		return Report{}, err
	}

	global, err := b.store.GlobalFloor(ctx)
	if err != nil {
		return Report{}, err
	}
	last, err := b.store.LastCheckpoint(ctx, account.ExternalID)
	if err != nil {
		return Report{}, err
	}

	var g Day
	if global != nil {
		g = *global
	}
	floor := ComputeFloor(g, account.ServiceStart, last, b.clock.Location())

	report := Report{
		AccountCode:    code,
		RequestedStart: reqStart,
		RequestedEnd:   reqEnd,
		WindowStart:    MaxDay(reqStart, floor),
		WindowEnd:      MinDay(reqEnd, Today(b.clock)),
		BaseTotal:      decimal.Zero,
		ChargeTotal:    decimal.Zero,
		GrandTotal:     decimal.Zero,
	}
	if report.WindowStart.After(report.WindowEnd) {
		report.NotYetActive = true
		return report, nil
	}

	cal, err := b.loadCalendar(ctx)
	if err != nil {
		return Report{}, err
	}

	section, err := b.buildSection(ctx, account, report.WindowStart, report.WindowEnd, last, cal, true)
	if err != nil {
		return Report{}, err
	}

	report.Sections = []AccountSection{section}
	report.BaseTotal = section.Base
	report.ChargeTotal = section.ChargeTotal
	report.GrandTotal = section.Total
	return report, nil
}

// =============================================================================
// COMBINED (ALL-ACCOUNTS) REPORT
// =============================================================================

func (b *ReportBuilder) buildCombined(ctx context.Context, reqStart, reqEnd Day) (Report, error) {
	global, err := b.store.GlobalFloor(ctx)
	if err != nil {
		return Report{}, err
	}
	var floor Day
	if global != nil {
		floor = *global
	}

	report := Report{
		RequestedStart: reqStart,
		RequestedEnd:   reqEnd,
		WindowStart:    MaxDay(reqStart, floor),
		WindowEnd:      MinDay(reqEnd, Today(b.clock)),
		BaseTotal:      decimal.Zero,
		ChargeTotal:    decimal.Zero,
		GrandTotal:     decimal.Zero,
	}
	if report.WindowStart.After(report.WindowEnd) {
		report.NotYetActive = true
		return report, nil
	}

	cal, err := b.loadCalendar(ctx)
	if err != nil {
		return Report{}, err
	}
	accounts, err := b.store.ListAccounts(ctx) // alias order
	if err != nil {
		return Report{}, err
	}

	known := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		known[a.ExternalID] = true
	}

	var sections []AccountSection
	for _, a := range accounts {
		last, err := b.store.LastCheckpoint(ctx, a.ExternalID)
		if err != nil {
			return Report{}, err
		}
		// Base accrues for active accounts only; a combined report
		// applies only the calendar floor and the account's own service
		// start, never its checkpoints, to the base window.
		section, err := b.buildSection(ctx, a, report.WindowStart, report.WindowEnd, last, cal, a.Active)
		if err != nil {
			return Report{}, err
		}
		if !a.Active && len(section.Charges) == 0 {
			continue // deactivated and nothing unsettled: no section
		}
		sections = append(sections, section)
	}

	unknown, err := b.buildUnknownSection(ctx, known, report.WindowStart, report.WindowEnd)
	if err != nil {
		return Report{}, err
	}
	if unknown != nil {
		sections = append(sections, *unknown)
	}

	report.Sections = sections
	for _, s := range sections {
		report.BaseTotal = report.BaseTotal.Add(s.Base)
		report.ChargeTotal = report.ChargeTotal.Add(s.ChargeTotal)
		report.GrandTotal = report.GrandTotal.Add(s.Total)
	}
	return report, nil
}

// =============================================================================
// SECTION ASSEMBLY
// =============================================================================

// buildSection computes one account's base and unsettled REAL charges
// within [start, end]. The account's own service start still raises its
// base window; withBase=false skips base accrual (deactivated accounts).
func (b *ReportBuilder) buildSection(ctx context.Context, a Account, start, end Day, last *time.Time, cal *Calendar, withBase bool) (AccountSection, error) {
	section := AccountSection{
		AccountID:   a.ExternalID,
		Alias:       a.Alias,
		Name:        a.Name,
		Base:        decimal.Zero,
		ChargeTotal: decimal.Zero,
		Total:       decimal.Zero,
	}

	if withBase {
		baseStart := start
		if a.ServiceStart != nil {
			baseStart = MaxDay(baseStart, *a.ServiceStart)
		}
		section.WorkingDays = b.prorator.WorkingDays(baseStart, end, cal)
		section.Base = b.prorator.BaseOwed(a.EffectiveBase(b.globalBase), baseStart, end, cal)
	}

	real := ChargeReal
	loc := b.clock.Location()
	from := start.StartOfDay(loc)
	to := end.EndOfDay(loc)
	charges, err := b.store.Charges(ctx, ChargeFilter{
		AccountID: &a.ExternalID,
		From:      &from,
		To:        &to,
		Class:     &real,
	})
	if err != nil {
		return AccountSection{}, err
	}

	for _, c := range charges {
		if Settled(c.At, last) {
			continue
		}
		section.Charges = append(section.Charges, c)
		section.ChargeTotal = section.ChargeTotal.Add(c.Amount)
	}

	section.Total = section.Base.Add(section.ChargeTotal)
	return section, nil
}

// buildUnknownSection gathers REAL charges in the window whose account
// id resolves to no registered account. Such state inconsistencies must
// not fail the report. Returns nil when there are none.
func (b *ReportBuilder) buildUnknownSection(ctx context.Context, known map[string]bool, start, end Day) (*AccountSection, error) {
	real := ChargeReal
	loc := b.clock.Location()
	from := start.StartOfDay(loc)
	to := end.EndOfDay(loc)
	charges, err := b.store.Charges(ctx, ChargeFilter{From: &from, To: &to, Class: &real})
	if err != nil {
		return nil, err
	}

	section := AccountSection{
		Name:        "unknown account",
		Unknown:     true,
		Base:        decimal.Zero,
		ChargeTotal: decimal.Zero,
		Total:       decimal.Zero,
	}
	for _, c := range charges { // id order: deterministic
		if known[c.AccountID] {
			continue
		}
		section.Charges = append(section.Charges, c)
		section.ChargeTotal = section.ChargeTotal.Add(c.Amount)
	}
	if len(section.Charges) == 0 {
		return nil, nil
	}
	section.Total = section.ChargeTotal
	return &section, nil
}

func (b *ReportBuilder) loadCalendar(ctx context.Context) (*Calendar, error) {
	days, err := b.store.ExclusionDays(ctx)
	if err != nil {
		return nil, err
	}
	return NewCalendar(days), nil
}
