/*
proration.go - Converting the weekly base fee into per-working-day billing

PURPOSE:
  Computes the base portion owed for any date range: count the working
  days in the range (configured weekday pattern minus exclusion dates),
  multiply by the per-day rate derived once from the weekly amount.

NUMERIC SEMANTICS:
  Division is exact decimal, never integer. The per-day rate is computed
  once and multiplied by the day count - NOT accumulated day by day - so
  rounding error cannot compound across long windows.

EDGE CASES:
  - end < start yields zero, not an error (a window entirely in the
    future, or already fully settled)
  - an empty working-weekday pattern is a fatal ConfigError at
    construction, never silently handled

SEE ALSO:
  - calendar.go: the exclusion snapshot consumed here
  - report.go: composes BaseOwed with the charge ledger
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWorkingWeekdays is the default pattern: the first five days of
// a Monday-anchored week.
var DefaultWorkingWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// =============================================================================
// PRORATOR
// =============================================================================

// Prorator converts a weekly base amount into per-working-day billing.
type Prorator struct {
	working     map[time.Weekday]bool
	daysPerWeek int
}

// NewProrator builds a prorator for the given working-weekday pattern.
// An empty pattern is a fatal configuration error.
func NewProrator(weekdays []time.Weekday) (*Prorator, error) {
	working := make(map[time.Weekday]bool)
	for _, wd := range weekdays {
		working[wd] = true
	}
	if len(working) == 0 {
		return nil, &ConfigError{Field: "working_days", Reason: "working days per week must be > 0"}
	}
	return &Prorator{working: working, daysPerWeek: len(working)}, nil
}

// DefaultProrator returns the Monday-to-Friday prorator.
func DefaultProrator() *Prorator {
	p, _ := NewProrator(DefaultWorkingWeekdays) // default pattern is non-empty
	return p
}

// DaysPerWeek returns the number of working days in a full week.
func (p *Prorator) DaysPerWeek() int { return p.daysPerWeek }

// IsWorkingDay reports whether d is billable: on the working pattern and
// not excluded by the calendar.
func (p *Prorator) IsWorkingDay(d Day, cal *Calendar) bool {
	if !p.working[d.Weekday()] {
		return false
	}
	return cal == nil || !cal.Contains(d)
}

// WorkingDays counts the billable dates in [start, end] inclusive.
// An inverted range counts zero days.
func (p *Prorator) WorkingDays(start, end Day, cal *Calendar) int {
	count := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if p.IsWorkingDay(d, cal) {
			count++
		}
	}
	return count
}

// DailyRate returns the per-working-day rate for a weekly amount,
// computed with exact decimal division.
func (p *Prorator) DailyRate(weekly decimal.Decimal) decimal.Decimal {
	return weekly.Div(decimal.NewFromInt(int64(p.daysPerWeek)))
}

// BaseOwed returns the base portion owed for [start, end]:
// rate-per-day * working-day count. Zero for an inverted range.
func (p *Prorator) BaseOwed(weekly decimal.Decimal, start, end Day, cal *Calendar) decimal.Decimal {
	days := p.WorkingDays(start, end, cal)
	if days == 0 {
		return decimal.Zero
	}
	return p.DailyRate(weekly).Mul(decimal.NewFromInt(int64(days)))
}
