/*
scheduler.go - Automated expiry scheduler

PURPOSE:
  Periodically runs the expiry engine so brought-forward and TOIL balances
  whose expiry date has passed get their correction rows without manual
  intervention.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Single-flight: runs are serialized through Handler.RunExpiry, shared
    with the manual POST /api/expiry/run endpoint
  - Each run gets a uuid and is kept in a bounded in-memory log for
    inspection

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerExpiry endpoint (manual runs)
  - leave/expiry.go: The engine itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxRunLog bounds the in-memory run history.
const maxRunLog = 50

// ExpiryRun records one scheduler run.
type ExpiryRun struct {
	ID          string
	Corrections int
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// ExpiryScheduler runs the expiry engine on a fixed interval.
type ExpiryScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	runs []ExpiryRun
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(handler *Handler) *ExpiryScheduler {
	return &ExpiryScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Scheduler] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the scheduler.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (es *ExpiryScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.runOnce()

	for {
		select {
		case <-es.ticker.C:
			es.runOnce()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpiryScheduler) runOnce() {
	run := ExpiryRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}

	corrections, err := es.Handler.RunExpiry(context.Background())
	run.Corrections = corrections
	run.Err = err
	run.FinishedAt = time.Now()

	if err != nil {
		log.Printf("[Scheduler] Run %s failed: %v", run.ID, err)
	} else if corrections > 0 {
		log.Printf("[Scheduler] Run %s: wrote %d expiry corrections", run.ID, corrections)
	}

	es.mu.Lock()
	es.runs = append(es.runs, run)
	if len(es.runs) > maxRunLog {
		es.runs = es.runs[len(es.runs)-maxRunLog:]
	}
	es.mu.Unlock()
}

// RunNow triggers an immediate run (for testing/admin).
func (es *ExpiryScheduler) RunNow() {
	es.runOnce()
}

// Runs returns a copy of the recorded run history, most recent last.
func (es *ExpiryScheduler) Runs() []ExpiryRun {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]ExpiryRun(nil), es.runs...)
}

// NextRunTime returns when the next scheduled run will occur.
func (es *ExpiryScheduler) NextRunTime() time.Time {
	return time.Now().Add(es.CheckInterval)
}
