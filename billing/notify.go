/*
notify.go - Holiday boundary notifications

PURPOSE:
  Emits a reminder a fixed number of days before a holiday range starts
  (service pausing) and before it ends (service resuming). The sweep is
  driven by a daily tick, but correctness never depends on tick timing:
  the persisted per-range flags make any number of same-day runs emit
  each boundary at most once.

EXACT-DAY RULE:
  A boundary fires only when today == boundary - offset, by equality.
  Ranges created inside the reminder window simply never fire that
  boundary; there is no catch-up emission.

SEE ALSO:
  - calendar.go: owns the ranges and their flags
*/
package billing

import (
	"context"
	"log"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventRangeCreated EventKind = "range_created"
	EventStartsSoon   EventKind = "starts_soon"
	EventEndsSoon     EventKind = "ends_soon"
)

// Event is one notification about a holiday range boundary.
type Event struct {
	Kind  EventKind
	Range HolidayRange

	// DaysUntil is the offset to the boundary; zero for creation events.
	DaysUntil int
}

// Notifier delivers events to an external channel. Delivery is
// fire-and-forget: failures are the notifier's problem, never the
// sweep's.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// LogNotifier writes events to the process log. The default sink when
// no external channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(e Event) {
	switch e.Kind {
	case EventRangeCreated:
		log.Printf("[Notify] holiday range recorded: %s to %s", e.Range.Start, e.Range.End)
	case EventStartsSoon:
		log.Printf("[Notify] service pauses in %d day(s): %s to %s", e.DaysUntil, e.Range.Start, e.Range.End)
	case EventEndsSoon:
		log.Printf("[Notify] service resumes in %d day(s): holiday ends %s", e.DaysUntil, e.Range.End)
	}
}

// =============================================================================
// SWEEPER
// =============================================================================

// Sweeper walks the recorded holiday ranges once per invocation and
// fires any boundary whose reminder day is today. Each flag flip is
// persisted in its own transaction before the event is emitted, so a
// crash between the two loses a reminder rather than duplicating one.
type Sweeper struct {
	store    TxStore
	clock    Clock
	notifier Notifier

	// offset is the number of days before a boundary the reminder fires.
	offset int
}

func NewSweeper(store TxStore, clock Clock, notifier Notifier, offsetDays int) *Sweeper {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Sweeper{store: store, clock: clock, notifier: notifier, offset: offsetDays}
}

// Run performs one sweep. Returns the events emitted.
func (w *Sweeper) Run(ctx context.Context) ([]Event, error) {
	today := Today(w.clock)

	ranges, err := w.store.HolidayRanges(ctx)
	if err != nil {
		return nil, err
	}

	var emitted []Event
	for _, r := range ranges {
		if !r.NotifiedBeforeStart && today.Equal(r.Start.AddDays(-w.offset)) {
			e, err := w.fire(ctx, r, EventStartsSoon, func(hr *HolidayRange) {
				hr.NotifiedBeforeStart = true
			})
			if err != nil {
				return emitted, err
			}
			emitted = append(emitted, e)
			r.NotifiedBeforeStart = true
		}
		if !r.NotifiedBeforeEnd && today.Equal(r.End.AddDays(-w.offset)) {
			e, err := w.fire(ctx, r, EventEndsSoon, func(hr *HolidayRange) {
				hr.NotifiedBeforeEnd = true
			})
			if err != nil {
				return emitted, err
			}
			emitted = append(emitted, e)
		}
	}
	return emitted, nil
}

// fire persists the flag flip, then emits. Order matters: persisting
// first keeps the flag monotone even when emission is interrupted.
func (w *Sweeper) fire(ctx context.Context, r HolidayRange, kind EventKind, mark func(*HolidayRange)) (Event, error) {
	mark(&r)
	err := w.store.WithTx(ctx, func(s Store) error {
		return s.SaveHolidayRange(ctx, r)
	})
	if err != nil {
		return Event{}, err
	}

	e := Event{Kind: kind, Range: r, DaysUntil: w.offset}
	w.notifier.Notify(e)
	return e, nil
}
