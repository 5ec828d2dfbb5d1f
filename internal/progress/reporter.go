package progress

import (
	"sync"
	"time"

	"achievement-sync/internal/logging"
	"achievement-sync/internal/throttle"
)

// Report is one progress snapshot of a refresh run. Subscribers compare
// OperationID against the active run to discard stale reports from a
// superseded run.
type Report struct {
	Message       string `json:"message"`
	CurrentStep   int    `json:"current_step"`
	TotalSteps    int    `json:"total_steps"`
	Canceled      bool   `json:"canceled"`
	OperationID   string `json:"operation_id"`
	Mode          string `json:"mode"`
	CurrentGameID string `json:"current_game_id,omitempty"`
}

// Percent returns the derived completion percentage, 0 when totals are unknown.
func (r Report) Percent() int {
	if r.TotalSteps <= 0 {
		return 0
	}
	p := r.CurrentStep * 100 / r.TotalSteps
	if p > 100 {
		p = 100
	}
	return p
}

// Final reports whether this is a terminal report. Finals bypass throttling.
func (r Report) Final() bool {
	if r.Canceled {
		return true
	}
	if r.TotalSteps > 0 && r.CurrentStep >= r.TotalSteps {
		return true
	}
	return r.Percent() >= 100 && r.TotalSteps > 0
}

// Subscriber receives emitted reports. A panicking subscriber is isolated and
// never prevents delivery to the others.
type Subscriber func(Report)

type pendingReport struct {
	report   Report
	priority bool
}

// Reporter publishes progress without flooding subscribers: a throttle.Gate
// decides the leading-edge emit, intermediate reports within the window are
// coalesced (latest wins, priority beats non-priority) and flushed by a
// trailing one-shot timer, and final reports always go out immediately.
type Reporter struct {
	interval time.Duration
	gate     *throttle.Gate

	mu      sync.Mutex // guards pending and timer
	pending *pendingReport
	timer   *time.Timer

	subMu  sync.Mutex
	subs   map[int]Subscriber
	nextID int

	lastMu sync.Mutex
	last   *Report
}

func NewReporter(interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		interval: interval,
		gate:     throttle.NewGate(interval),
		subs:     make(map[int]Subscriber),
	}
}

// Subscribe registers fn and returns an unsubscribe func.
func (r *Reporter) Subscribe(fn Subscriber) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

// Publish offers a report for emission under the throttle policy.
func (r *Reporter) Publish(rep Report) {
	r.publish(rep, false)
}

// PublishPriority offers a report that may override a non-priority pending
// one (icon sub-progress uses this).
func (r *Reporter) PublishPriority(rep Report) {
	r.publish(rep, true)
}

// EmitNow delivers a report immediately, bypassing the throttle. Used for
// terminal states that are not derivable from step counts (failures, empty
// scopes). Any pending intermediate report is superseded and dropped.
func (r *Reporter) EmitNow(rep Report) {
	r.mu.Lock()
	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gate.Force(time.Now())
	r.mu.Unlock()
	r.emit(rep)
}

// Reemit re-delivers a snapshot of the active run (a rejected start answers
// with current status). The run's own pending report, trailing timer and
// throttle window stay untouched, so its newest state is not delayed by the
// snapshot.
func (r *Reporter) Reemit(rep Report) {
	r.emit(rep)
}

func (r *Reporter) publish(rep Report, priority bool) {
	if rep.Final() {
		r.EmitNow(rep)
		return
	}

	r.mu.Lock()
	now := time.Now()
	if r.gate.TryPass(now) {
		r.pending = nil
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.mu.Unlock()
		r.emit(rep)
		return
	}

	// Within the window: stash as pending. A priority report overrides
	// anything; a non-priority one never displaces a pending priority report.
	if r.pending == nil || priority || !r.pending.priority {
		r.pending = &pendingReport{report: rep, priority: priority}
	}
	if r.timer == nil {
		wait := r.interval - r.gate.Elapsed(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		r.timer = time.AfterFunc(wait, r.flushPending)
	}
	r.mu.Unlock()
}

func (r *Reporter) flushPending() {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.timer = nil
	if p != nil {
		r.gate.Force(time.Now())
	}
	r.mu.Unlock()
	if p != nil {
		r.emit(p.report)
	}
}

// Last returns the most recently emitted report, for late subscribers.
func (r *Reporter) Last() (Report, bool) {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

func (r *Reporter) emit(rep Report) {
	r.lastMu.Lock()
	cp := rep
	r.last = &cp
	r.lastMu.Unlock()

	r.subMu.Lock()
	subs := make([]Subscriber, 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.subMu.Unlock()

	for _, fn := range subs {
		r.safeInvoke(fn, rep)
	}
}

func (r *Reporter) safeInvoke(fn Subscriber, rep Report) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn("progress subscriber panicked", "panic", rec)
		}
	}()
	fn(rep)
}
