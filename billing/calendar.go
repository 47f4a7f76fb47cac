/*
calendar.go - Exclusion calendar: dates on which the service is suspended

PURPOSE:
  Maintains the set of no-service dates (single days and holiday ranges).
  The Proration Engine consults this set so suspended days accrue no base
  fee. Holiday ranges additionally carry three monotone notification
  flags that make the daily reminder sweep idempotent (see notify.go).

INVARIANTS:
  - The single-date set is sorted and deduplicated
  - Adding a range inserts every date in [start, end] into the set
  - Notification flags only ever go false -> true, never reset

SEE ALSO:
  - proration.go: consumes Calendar for working-day counting
  - notify.go: drives the per-range notification flags
*/
package billing

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// HOLIDAY RANGE
// =============================================================================

// HolidayRange is a contiguous no-service period. Its expansion inserts
// every date in [Start, End] into the exclusion set. The three flags
// exist purely to make the Notification Scheduler fire once per boundary.
type HolidayRange struct {
	ID    string
	Start Day
	End   Day

	NotifiedOnCreate    bool
	NotifiedBeforeStart bool
	NotifiedBeforeEnd   bool
}

// Days returns every date in the range, inclusive.
func (r HolidayRange) Days() []Day {
	var days []Day
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// =============================================================================
// CALENDAR - In-memory snapshot of the exclusion state
// =============================================================================

// Calendar is a read-only snapshot of the exclusion dates, loaded once
// per computation so working-day counting never goes back to the store
// date-by-date.
type Calendar struct {
	days []Day // sorted ascending, deduplicated
}

// NewCalendar builds a snapshot from an arbitrary date list, sorting and
// deduplicating it.
func NewCalendar(days []Day) *Calendar {
	sorted := make([]Day, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	dedup := sorted[:0]
	for i, d := range sorted {
		if i == 0 || !d.Equal(sorted[i-1]) {
			dedup = append(dedup, d)
		}
	}
	return &Calendar{days: dedup}
}

// EmptyCalendar returns a calendar with no exclusions.
func EmptyCalendar() *Calendar { return &Calendar{} }

// Contains reports whether d is an excluded (no-service) date.
func (c *Calendar) Contains(d Day) bool {
	i := sort.Search(len(c.days), func(i int) bool {
		return c.days[i].AfterOrEqual(d)
	})
	return i < len(c.days) && c.days[i].Equal(d)
}

// Days returns the sorted exclusion dates.
func (c *Calendar) Days() []Day {
	out := make([]Day, len(c.days))
	copy(out, c.days)
	return out
}

// Len returns the number of excluded dates.
func (c *Calendar) Len() int { return len(c.days) }

// =============================================================================
// CALENDAR MANAGER - Mutations on the persisted exclusion state
// =============================================================================

// CalendarManager owns calendar mutations. Range creation optionally
// announces itself through the notifier exactly once (the created flag
// is persisted in the same transaction as the range).
type CalendarManager struct {
	store    TxStore
	notifier Notifier
}

func NewCalendarManager(store TxStore, notifier Notifier) *CalendarManager {
	return &CalendarManager{store: store, notifier: notifier}
}

// AddDate inserts a single no-service date. Duplicates are absorbed.
func (m *CalendarManager) AddDate(ctx context.Context, d Day) error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidRange)
	}
	return m.store.WithTx(ctx, func(s Store) error {
		return s.AddExclusionDays(ctx, []Day{d})
	})
}

// AddRange records a holiday range and expands it into the single-date
// set atomically. Returns the stored range (with its assigned id).
func (m *CalendarManager) AddRange(ctx context.Context, start, end Day) (HolidayRange, error) {
	if end.Before(start) {
		return HolidayRange{}, fmt.Errorf("%w: %s before %s", ErrInvalidRange, end, start)
	}

	r := HolidayRange{
		ID:               fmt.Sprintf("hr-%s-%s", start, end),
		Start:            start,
		End:              end,
		NotifiedOnCreate: true, // the creation announcement below is the one emission
	}

	err := m.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveHolidayRange(ctx, r); err != nil {
			return err
		}
		return s.AddExclusionDays(ctx, r.Days())
	})
	if err != nil {
		return HolidayRange{}, err
	}

	if m.notifier != nil {
		m.notifier.Notify(Event{Kind: EventRangeCreated, Range: r})
	}
	return r, nil
}

// RemoveDate deletes a single date from the exclusion set. Returns false
// (not an error) if the date was not excluded.
func (m *CalendarManager) RemoveDate(ctx context.Context, d Day) (bool, error) {
	var removed bool
	err := m.store.WithTx(ctx, func(s Store) error {
		var err error
		removed, err = s.RemoveExclusionDay(ctx, d)
		return err
	})
	return removed, err
}

// Load returns the current exclusion snapshot.
func (m *CalendarManager) Load(ctx context.Context) (*Calendar, error) {
	days, err := m.store.ExclusionDays(ctx)
	if err != nil {
		return nil, err
	}
	return NewCalendar(days), nil
}

// Ranges returns all recorded holiday ranges.
func (m *CalendarManager) Ranges(ctx context.Context) ([]HolidayRange, error) {
	return m.store.HolidayRanges(ctx)
}
