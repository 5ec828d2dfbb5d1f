package throttle

import (
	"sync/atomic"
	"time"
)

// Gate rate-limits an action to at most once per interval using a
// compare-and-swap on the last-pass timestamp, so concurrent callers need no
// lock. The same primitive backs progress emission and cache-invalidation
// broadcasts.
type Gate struct {
	interval time.Duration
	last     atomic.Int64 // unix nanos of last pass, 0 = never
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// TryPass reports whether the action may run now, atomically claiming the
// slot when it may. Only one of several concurrent callers wins.
func (g *Gate) TryPass(now time.Time) bool {
	for {
		last := g.last.Load()
		if last != 0 && now.UnixNano()-last < int64(g.interval) {
			return false
		}
		if g.last.CompareAndSwap(last, now.UnixNano()) {
			return true
		}
	}
}

// Force claims the slot unconditionally, resetting the window.
func (g *Gate) Force(now time.Time) {
	g.last.Store(now.UnixNano())
}

// Elapsed returns how long ago the gate last passed, or a negative value if
// it never has.
func (g *Gate) Elapsed(now time.Time) time.Duration {
	last := g.last.Load()
	if last == 0 {
		return -1
	}
	return time.Duration(now.UnixNano() - last)
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}
