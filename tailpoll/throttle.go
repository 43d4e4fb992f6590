// Package tailpoll implements the tail-poll throttle of §4.2: a single
// atomically-replaced record of the last checkpoint observed to be at
// the tail of the backing-store log, used to rate-limit repeated
// "am I still at the tail?" polling.
package tailpoll

import (
	"context"
	"sync/atomic"
	"time"
)

// Observation is a TailObservation: the checkpoint that, as of
// observedAt, was the tail of the log.
type Observation struct {
	Checkpoint string
	ObservedAt time.Time
}

// Throttle holds a single Observation, replaced wholesale and
// atomically by writers. It never blocks Observe or Current; only Wait
// suspends.
type Throttle struct {
	pollInterval time.Duration
	slot         atomic.Pointer[Observation]
}

// New returns a Throttle that enforces at least pollInterval between
// re-polls of the same tail checkpoint.
func New(pollInterval time.Duration) *Throttle {
	return &Throttle{pollInterval: pollInterval}
}

// Observe overwrites the held observation unconditionally. Racing
// writers may clobber one another; the last Observe to land wins, which
// is acceptable since the record is advisory only (§9).
func (t *Throttle) Observe(checkpoint string, observedAt time.Time) {
	t.slot.Store(&Observation{Checkpoint: checkpoint, ObservedAt: observedAt})
}

// Current returns the held observation, or the zero value if none has
// ever been recorded.
func (t *Throttle) Current() Observation {
	if o := t.slot.Load(); o != nil {
		return *o
	}
	return Observation{}
}

// Wait blocks until it is safe to re-poll cursor: if the held
// observation's checkpoint equals cursor, it sleeps for whatever remains
// of pollInterval since that observation was recorded. If the
// checkpoints differ, or if no observation has ever been recorded, Wait
// returns immediately — the throttle never slows a cold read. Wait
// returns early with ctx.Err() if ctx is cancelled during the sleep.
func (t *Throttle) Wait(ctx context.Context, cursor string) error {
	var o = t.Current()
	if o.ObservedAt.IsZero() || o.Checkpoint != cursor {
		return nil
	}
	var remaining = t.pollInterval - time.Since(o.ObservedAt)
	if remaining <= 0 {
		return nil
	}
	var timer = time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
