package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/flowsim/sim"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
}

// SetFinished overwrites the finished amount. It never moves the bar
// backwards or past Total.
func (b *ProgressBar) SetFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	if amount > b.Total {
		amount = b.Total
	}

	if amount > b.Finished {
		b.Finished = amount
	}
}

// SimTimeTracker is an engine hook that moves a progress bar along with the
// simulated time. The bar counts nanoseconds up to the stop time.
type SimTimeTracker struct {
	lock sync.Mutex
	bar  *ProgressBar
}

// NewSimTimeTracker creates a tracker for a bar whose Total is the stop time
// in nanoseconds.
func NewSimTimeTracker(bar *ProgressBar) *SimTimeTracker {
	return &SimTimeTracker{bar: bar}
}

// Func updates the bar after every event.
func (t *SimTimeTracker) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	evt, ok := ctx.Item.(sim.EventInfo)
	if !ok {
		return
	}

	t.lock.Lock()
	bar := t.bar
	t.lock.Unlock()

	bar.SetFinished(uint64(evt.Time))
}

// SetBar makes the tracker move another bar from now on.
func (t *SimTimeTracker) SetBar(bar *ProgressBar) {
	t.lock.Lock()
	t.bar = bar
	t.lock.Unlock()
}
