package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirstPassAlwaysAllowed(t *testing.T) {
	g := NewGate(time.Second)
	if !g.TryPass(time.Now()) {
		t.Error("Expected first pass to be allowed")
	}
}

func TestWithinWindowBlocked(t *testing.T) {
	g := NewGate(time.Second)
	now := time.Now()
	if !g.TryPass(now) {
		t.Fatal("Expected first pass to be allowed")
	}
	if g.TryPass(now.Add(500 * time.Millisecond)) {
		t.Error("Expected pass within window to be blocked")
	}
}

func TestAfterWindowAllowed(t *testing.T) {
	g := NewGate(time.Second)
	now := time.Now()
	g.TryPass(now)
	if !g.TryPass(now.Add(time.Second)) {
		t.Error("Expected pass after window to be allowed")
	}
}

func TestForceResetsWindow(t *testing.T) {
	g := NewGate(time.Second)
	now := time.Now()
	g.TryPass(now)

	later := now.Add(100 * time.Millisecond)
	g.Force(later)
	if g.TryPass(later.Add(900 * time.Millisecond)) {
		t.Error("Expected window to restart from the forced pass")
	}
	if !g.TryPass(later.Add(time.Second)) {
		t.Error("Expected pass one interval after the forced pass")
	}
}

func TestElapsed(t *testing.T) {
	g := NewGate(time.Second)
	now := time.Now()
	if g.Elapsed(now) >= 0 {
		t.Error("Expected negative elapsed before any pass")
	}
	g.TryPass(now)
	if got := g.Elapsed(now.Add(300 * time.Millisecond)); got != 300*time.Millisecond {
		t.Errorf("Expected 300ms elapsed, got %v", got)
	}
}

func TestConcurrentSingleWinner(t *testing.T) {
	g := NewGate(time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	var passed atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryPass(now) {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	if passed.Load() != 1 {
		t.Errorf("Expected exactly one concurrent caller to pass, got %d", passed.Load())
	}
}
