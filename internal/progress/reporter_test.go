package progress

import (
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu      sync.Mutex
	reports []Report
}

func (c *capture) fn() Subscriber {
	return func(rep Report) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.reports = append(c.reports, rep)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func (c *capture) last() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reports) == 0 {
		return Report{}, false
	}
	return c.reports[len(c.reports)-1], true
}

func TestPercent(t *testing.T) {
	tests := []struct {
		step, total, want int
	}{
		{0, 0, 0},
		{5, 10, 50},
		{10, 10, 100},
		{15, 10, 100},
		{3, 0, 0},
	}
	for _, tt := range tests {
		r := Report{CurrentStep: tt.step, TotalSteps: tt.total}
		if got := r.Percent(); got != tt.want {
			t.Errorf("Percent(%d/%d) = %d, want %d", tt.step, tt.total, got, tt.want)
		}
	}
}

func TestFinal(t *testing.T) {
	if (Report{CurrentStep: 5, TotalSteps: 10}).Final() {
		t.Error("Mid-run report must not be final")
	}
	if !(Report{CurrentStep: 10, TotalSteps: 10}).Final() {
		t.Error("Completed report must be final")
	}
	if !(Report{Canceled: true}).Final() {
		t.Error("Canceled report must be final")
	}
	if (Report{}).Final() {
		t.Error("Empty report must not be final")
	}
}

func TestLeadingEmit(t *testing.T) {
	r := NewReporter(time.Hour)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{Message: "first", CurrentStep: 1, TotalSteps: 10})
	if c.count() != 1 {
		t.Fatalf("Expected immediate leading emit, got %d deliveries", c.count())
	}
}

func TestCoalescingWithinWindow(t *testing.T) {
	r := NewReporter(50 * time.Millisecond)
	c := &capture{}
	r.Subscribe(c.fn())

	for i := 1; i <= 20; i++ {
		r.Publish(Report{Message: "step", CurrentStep: i, TotalSteps: 100})
	}
	// Leading emit plus at most the trailing flush.
	time.Sleep(120 * time.Millisecond)

	if got := c.count(); got > 2 {
		t.Errorf("Expected at most 2 deliveries for a burst, got %d", got)
	}
	last, ok := c.last()
	if !ok {
		t.Fatal("Expected at least one delivery")
	}
	if last.CurrentStep != 1 && last.CurrentStep != 20 {
		t.Errorf("Expected leading or latest report, got step %d", last.CurrentStep)
	}
}

func TestTrailingFlushDeliversLatest(t *testing.T) {
	r := NewReporter(50 * time.Millisecond)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{CurrentStep: 1, TotalSteps: 100}) // leading
	r.Publish(Report{CurrentStep: 2, TotalSteps: 100})
	r.Publish(Report{CurrentStep: 3, TotalSteps: 100})

	time.Sleep(120 * time.Millisecond)
	last, ok := c.last()
	if !ok || last.CurrentStep != 3 {
		t.Errorf("Expected trailing flush with step 3, got %+v (delivered %d)", last, c.count())
	}
}

func TestPriorityOverridesPending(t *testing.T) {
	r := NewReporter(60 * time.Millisecond)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{Message: "leading", TotalSteps: 100})            // opens the window
	r.Publish(Report{Message: "ordinary", CurrentStep: 1, TotalSteps: 100})
	r.PublishPriority(Report{Message: "priority", CurrentStep: 2, TotalSteps: 100})
	r.Publish(Report{Message: "late ordinary", CurrentStep: 3, TotalSteps: 100})

	time.Sleep(150 * time.Millisecond)
	last, ok := c.last()
	if !ok {
		t.Fatal("Expected deliveries")
	}
	if last.Message != "priority" {
		t.Errorf("Expected pending priority report to survive, got %q", last.Message)
	}
}

func TestFinalBypassesThrottle(t *testing.T) {
	r := NewReporter(time.Hour)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{CurrentStep: 1, TotalSteps: 10})  // leading, opens window
	r.Publish(Report{CurrentStep: 2, TotalSteps: 10})  // pending
	r.Publish(Report{CurrentStep: 10, TotalSteps: 10}) // final

	if c.count() != 2 {
		t.Fatalf("Expected leading + final, got %d deliveries", c.count())
	}
	last, _ := c.last()
	if last.CurrentStep != 10 {
		t.Errorf("Expected the final report last, got step %d", last.CurrentStep)
	}

	// The superseded pending report must not arrive later.
	time.Sleep(50 * time.Millisecond)
	if c.count() != 2 {
		t.Errorf("Expected no trailing flush after a final, got %d deliveries", c.count())
	}
}

func TestEmitNowBypassesThrottle(t *testing.T) {
	r := NewReporter(time.Hour)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{CurrentStep: 1, TotalSteps: 10})
	r.EmitNow(Report{Message: "failed"})

	if c.count() != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", c.count())
	}
	last, _ := c.last()
	if last.Message != "failed" {
		t.Errorf("Expected the immediate report last, got %q", last.Message)
	}
}

func TestReemitKeepsPendingFromActiveRun(t *testing.T) {
	r := NewReporter(50 * time.Millisecond)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{Message: "leading", CurrentStep: 1, TotalSteps: 10, OperationID: "op-1"})
	r.Publish(Report{Message: "newest", CurrentStep: 2, TotalSteps: 10, OperationID: "op-1"})

	// A rejected start re-delivers the last snapshot of the running operation.
	last, ok := r.Last()
	if !ok {
		t.Fatal("Expected a last report")
	}
	r.Reemit(last)

	// The run's newest intermediate state still flushes on its own schedule.
	time.Sleep(120 * time.Millisecond)
	got, ok := c.last()
	if !ok || got.Message != "newest" {
		t.Errorf("Expected the pending report to flush after the snapshot, got %+v", got)
	}
}

func TestReemitDoesNotResetThrottleWindow(t *testing.T) {
	r := NewReporter(50 * time.Millisecond)
	c := &capture{}
	r.Subscribe(c.fn())

	r.Publish(Report{Message: "leading", CurrentStep: 1, TotalSteps: 10, OperationID: "op-1"})
	time.Sleep(60 * time.Millisecond)
	r.Reemit(Report{Message: "snapshot", CurrentStep: 1, TotalSteps: 10, OperationID: "op-1"})

	// The window expired before the snapshot, so the next ordinary report
	// must still emit on the leading edge.
	r.Publish(Report{Message: "after", CurrentStep: 2, TotalSteps: 10, OperationID: "op-1"})
	got, ok := c.last()
	if !ok || got.Message != "after" {
		t.Errorf("Expected an immediate leading emit after the snapshot, got %+v", got)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	r := NewReporter(time.Millisecond)
	c := &capture{}
	r.Subscribe(func(Report) { panic("bad subscriber") })
	r.Subscribe(c.fn())

	r.EmitNow(Report{Message: "hello"})
	if c.count() != 1 {
		t.Errorf("Expected healthy subscriber to receive the report, got %d", c.count())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewReporter(time.Millisecond)
	c := &capture{}
	unsubscribe := r.Subscribe(c.fn())

	r.EmitNow(Report{Message: "one"})
	unsubscribe()
	r.EmitNow(Report{Message: "two"})

	if c.count() != 1 {
		t.Errorf("Expected 1 delivery after unsubscribe, got %d", c.count())
	}
}

func TestLastRetained(t *testing.T) {
	r := NewReporter(time.Millisecond)
	if _, ok := r.Last(); ok {
		t.Error("Expected no last report initially")
	}
	r.EmitNow(Report{Message: "snapshot", OperationID: "op-1"})
	last, ok := r.Last()
	if !ok || last.OperationID != "op-1" {
		t.Errorf("Expected retained report op-1, got %+v (ok=%v)", last, ok)
	}
}
