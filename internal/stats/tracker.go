package stats

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Tracker logs the throughput of one processing phase at a fixed item
// interval plus a final summary. A nil Tracker is valid and does nothing, so
// call sites stay unconditional. Safe for concurrent Ticks.
type Tracker struct {
	phase    string
	unit     string
	interval uint64
	started  time.Time

	mu        sync.Mutex
	lastTime  time.Time
	lastCount uint64
}

func NewTracker(phase, unit string, interval uint64) *Tracker {
	now := time.Now()
	return &Tracker{
		phase:    phase,
		unit:     unit,
		interval: interval,
		started:  now,
		lastTime: now,
	}
}

// Tick reports the cumulative number of processed items and logs the rate of
// the last interval whenever the count crosses an interval boundary.
func (t *Tracker) Tick(count uint64) {
	if t == nil || t.interval == 0 || count%t.interval != 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastTime).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(count-t.lastCount) / elapsed
	log.Infof("%s rate: %.2f %s/second", t.phase, rate, t.unit)

	t.lastTime = now
	t.lastCount = count
}

// Finish logs total volume, elapsed time and the average rate of the phase.
func (t *Tracker) Finish(total uint64) {
	if t == nil {
		return
	}

	elapsed := time.Since(t.started).Seconds()
	rate := float64(total)
	if elapsed > 0 {
		rate = float64(total) / elapsed
	}
	log.Infof("%s finished: %d %s in %.2fs (%.2f %s/second)", t.phase, total, t.unit, elapsed, rate, t.unit)
}
