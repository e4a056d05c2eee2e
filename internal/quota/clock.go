package quota

import (
	"sync/atomic"
	"time"
)

// Clock supplies the host time coordinate: a monotonic, non-decreasing epoch
// counter. The engine only ever subtracts epochs and compares the difference
// to Limits.Period; it never reads wall-clock time itself.
type Clock interface {
	Now() uint64
}

// EpochClock derives the epoch from wall time: the number of whole Lengths
// elapsed since Origin.
type EpochClock struct {
	Origin time.Time
	Length time.Duration
}

// NewEpochClock returns an EpochClock anchored at the Unix epoch.
func NewEpochClock(length time.Duration) EpochClock {
	return EpochClock{Origin: time.Unix(0, 0), Length: length}
}

func (c EpochClock) Now() uint64 {
	since := time.Since(c.Origin)
	if since < 0 {
		return 0
	}
	return uint64(since / c.Length)
}

// ManualClock is a settable Clock for tests and for embedders that drive the
// time coordinate themselves (e.g. a block producer).
type ManualClock struct {
	now atomic.Uint64
}

func (c *ManualClock) Now() uint64 { return c.now.Load() }

// Set moves the clock to epoch n. Callers must keep it non-decreasing.
func (c *ManualClock) Set(n uint64) { c.now.Store(n) }

// Advance moves the clock forward by d epochs.
func (c *ManualClock) Advance(d uint64) { c.now.Add(d) }
