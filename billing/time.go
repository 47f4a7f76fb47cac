package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar date in the operating timezone
// =============================================================================

// Day is a calendar date with no time component. All period accounting
// happens at day granularity; charge timestamps are reduced to a Day in
// the operating timezone before window checks.
type Day struct {
	Time time.Time // normalized to midnight UTC; only Y/M/D are meaningful
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of t as observed in loc. This is the
// single place a zoned timestamp becomes a date: a charge at 23:30 Dubai
// time belongs to that Dubai day regardless of its UTC date.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return NewDay(y, m, d)
}

// ParseDay parses a "YYYY-MM-DD" date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return NewDay(t.Year(), t.Month(), t.Day()), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool         { return d.Time.After(other.Time) }
func (d Day) Equal(other Day) bool         { return d.Time.Equal(other.Time) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

func MaxDay(a, b Day) Day {
	if a.After(b) {
		return a
	}
	return b
}

func MinDay(a, b Day) Day {
	if a.Before(b) {
		return a
	}
	return b
}

// Arithmetic and properties
func (d Day) AddDays(n int) Day         { return Day{Time: d.Time.AddDate(0, 0, n)} }
func (d Day) Weekday() time.Weekday     { return d.Time.Weekday() }
func (d Day) Year() int                 { return d.Time.Year() }
func (d Day) Month() time.Month         { return d.Time.Month() }
func (d Day) IsZero() bool              { return d.Time.IsZero() }
func (d Day) String() string            { return d.Time.Format("2006-01-02") }

// StartOfDay returns the first instant of the day in loc.
func (d Day) StartOfDay(loc *time.Location) time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last representable instant of the day in loc.
func (d Day) EndOfDay(loc *time.Location) time.Time {
	return d.AddDays(1).StartOfDay(loc).Add(-time.Nanosecond)
}

// =============================================================================
// REPORT WINDOWS
// =============================================================================

// WeekWindow returns the Monday-to-Sunday window containing today.
// The report builder clamps the end to today, so future weekdays are
// never billed.
func WeekWindow(today Day) (Day, Day) {
	offset := (int(today.Weekday()) + 6) % 7 // days since Monday
	start := today.AddDays(-offset)
	return start, start.AddDays(6)
}

// MonthWindow returns the first and last day of the given month.
func MonthWindow(year int, month time.Month) (Day, Day) {
	start := NewDay(year, month, 1)
	end := Day{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
	return start, end
}

// YearWindow returns January 1st and December 31st of the given year.
func YearWindow(year int) (Day, Day) {
	return NewDay(year, time.January, 1), NewDay(year, time.December, 31)
}

// =============================================================================
// CLOCK - Injectable source of "now" for deterministic reports
// =============================================================================

// Clock supplies the current instant and the operating timezone.
// Reports and the notification sweep never call time.Now directly:
// identical stored state and an identical clock produce byte-identical
// results.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Today returns the current date in the clock's operating timezone.
func Today(c Clock) Day {
	return DayOf(c.Now(), c.Location())
}

// ZoneClock is the production clock for a fixed operating timezone.
type ZoneClock struct {
	Loc *time.Location
}

func (c ZoneClock) Now() time.Time           { return time.Now().In(c.Loc) }
func (c ZoneClock) Location() *time.Location { return c.Loc }

// FixedClock is pinned to one instant, for tests.
type FixedClock struct {
	At  time.Time
	Loc *time.Location
}

func (c FixedClock) Now() time.Time { return c.At }

func (c FixedClock) Location() *time.Location {
	if c.Loc != nil {
		return c.Loc
	}
	return time.UTC
}
