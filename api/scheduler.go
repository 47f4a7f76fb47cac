/*
scheduler.go - Automated notification sweep scheduler

PURPOSE:
  Periodically runs the holiday boundary notification sweep so reminders
  fire without a client polling /api/sweep.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The sweep itself is idempotent (persisted per-range flags), so the
    interval only affects latency, never correctness: running hourly
    simply catches the day boundary within an hour
  - Errors are logged and the schedule keeps ticking

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual sweep)
  - billing/notify.go: Sweeper
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/billing-engine/billing"
)

// SweepScheduler drives the notification sweep on a timer.
type SweepScheduler struct {
	Engine        *billing.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler over the engine.
func NewSweepScheduler(engine *billing.Engine) *SweepScheduler {
	return &SweepScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()

	events, err := ss.Engine.Sweeper.Run(ctx)
	if err != nil {
		log.Printf("[Scheduler] Sweep error: %v", err)
		return
	}
	if len(events) > 0 {
		log.Printf("[Scheduler] Sweep emitted %d notification(s)", len(events))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}
