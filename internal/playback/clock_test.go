package playback

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type harness struct {
	sched   *ManualScheduler
	clock   *Clock
	now     time.Time
	total   float64
	renders []float64
	stops   []bool
}

func newHarness(total float64) *harness {
	h := &harness{
		sched: NewManualScheduler(),
		now:   time.Unix(1700000000, 0),
		total: total,
	}
	h.clock = New(Options{
		Logger:    zerolog.Nop(),
		Scheduler: h.sched,
		Now:       func() time.Time { return h.now },
		Total:     func() float64 { return h.total },
		Render:    func(t float64) { h.renders = append(h.renders, t) },
		OnStop:    func(ended bool) { h.stops = append(h.stops, ended) },
	})
	return h
}

// advance moves the fake wall clock and fires one refresh.
func (h *harness) advance(d float64) {
	h.now = h.now.Add(seconds(d))
	h.sched.Fire(h.now)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestClockAdvancesAndStopsAtEnd(t *testing.T) {
	h := newHarness(2.0)
	h.clock.StartFrom(0)

	h.advance(0.5)
	if !approx(h.clock.Progress(), 0.5) {
		t.Errorf("Expected progress 0.5, got %v", h.clock.Progress())
	}
	h.advance(1.0)
	if !approx(h.clock.Progress(), 1.5) {
		t.Errorf("Expected progress 1.5, got %v", h.clock.Progress())
	}

	h.advance(1.0)
	if h.clock.Progress() != 2.0 {
		t.Errorf("Expected progress clamped to 2.0, got %v", h.clock.Progress())
	}
	if h.clock.Running() {
		t.Error("Expected clock to stop at the end")
	}
	if h.sched.Pending() != 0 {
		t.Errorf("Expected no pending tick, got %d", h.sched.Pending())
	}
	if len(h.stops) != 1 || !h.stops[0] {
		t.Errorf("Expected one ended stop, got %v", h.stops)
	}
	if len(h.renders) != 3 || h.renders[2] != 2.0 {
		t.Errorf("Expected final render at total, got %v", h.renders)
	}
}

func TestClockStartFromVirtualStart(t *testing.T) {
	h := newHarness(10)
	h.clock.StartFrom(4)
	h.advance(0.25)
	if !approx(h.clock.Progress(), 4.25) {
		t.Errorf("Expected 4.25, got %v", h.clock.Progress())
	}
}

func TestClockStopKeepsProgress(t *testing.T) {
	h := newHarness(10)
	h.clock.StartFrom(0)
	h.advance(3)
	h.clock.Stop()

	if h.clock.Running() {
		t.Fatal("Expected stopped")
	}
	if !approx(h.clock.Progress(), 3) {
		t.Errorf("Expected progress kept at 3, got %v", h.clock.Progress())
	}
	rendered := len(h.renders)
	h.advance(1)
	if len(h.renders) != rendered {
		t.Error("Cancelled tick must not render")
	}
	if len(h.stops) != 1 || h.stops[0] {
		t.Errorf("Expected one manual stop, got %v", h.stops)
	}
}

func TestClockStaleTickIgnored(t *testing.T) {
	h := newHarness(10)
	h.clock.StartFrom(0)

	// Grab the in-flight tick before stopping, as if it had already fired.
	h.sched.mu.Lock()
	stale := h.sched.pending[0].fn
	h.sched.mu.Unlock()

	h.clock.Stop()
	h.clock.StartFrom(5)
	stale(h.now.Add(time.Second))

	if len(h.renders) != 0 {
		t.Errorf("Stale tick rendered: %v", h.renders)
	}
	if h.sched.Pending() != 1 {
		t.Errorf("Expected exactly one live tick, got %d", h.sched.Pending())
	}
}

func TestClockToggleAtEndRewinds(t *testing.T) {
	h := newHarness(1)
	h.clock.StartFrom(0)
	h.advance(2)
	if h.clock.Running() {
		t.Fatal("Expected clock at end")
	}

	h.clock.Toggle()
	if !h.clock.Running() {
		t.Fatal("Expected toggle to start playback")
	}
	if h.clock.Progress() != 0 {
		t.Errorf("Expected rewind to 0, got %v", h.clock.Progress())
	}
	h.advance(0.5)
	if !approx(h.clock.Progress(), 0.5) {
		t.Errorf("Expected 0.5 after restart, got %v", h.clock.Progress())
	}

	h.clock.Toggle()
	if h.clock.Running() {
		t.Error("Expected second toggle to pause")
	}
}

func TestClockSeekWhilePausedRendersOnce(t *testing.T) {
	h := newHarness(10)
	h.clock.Seek(7.5)

	if len(h.renders) != 1 || h.renders[0] != 7.5 {
		t.Errorf("Expected exactly one render at 7.5, got %v", h.renders)
	}
	if h.sched.Pending() != 0 {
		t.Error("Seek while paused must not schedule ticks")
	}

	h.clock.Seek(99)
	if h.clock.Progress() != 10 {
		t.Errorf("Expected seek clamped to 10, got %v", h.clock.Progress())
	}
}

func TestClockSeekWhileRunning(t *testing.T) {
	h := newHarness(10)
	h.clock.StartFrom(0)
	h.clock.Seek(6)
	if len(h.renders) != 0 {
		t.Error("Seek while running should leave rendering to the tick")
	}
	h.advance(0.5)
	if !approx(h.clock.Progress(), 6.5) {
		t.Errorf("Expected 6.5, got %v", h.clock.Progress())
	}
}

func TestClockReconcile(t *testing.T) {
	h := newHarness(10)
	h.clock.Seek(8)

	h.total = 8.0005
	if h.clock.Reconcile() {
		t.Error("Progress within epsilon should not rewind")
	}

	h.total = 5
	if !h.clock.Reconcile() {
		t.Fatal("Expected rewind after shrink")
	}
	if h.clock.Progress() != 0 {
		t.Errorf("Expected progress 0, got %v", h.clock.Progress())
	}
}

func TestClockRenderPanicDoesNotStopLoop(t *testing.T) {
	h := newHarness(10)
	calls := 0
	h.clock.render = func(float64) {
		calls++
		panic("boom")
	}
	h.clock.StartFrom(0)
	h.advance(0.1)
	h.advance(0.1)

	if calls != 2 || !h.clock.Running() {
		t.Errorf("Expected loop to survive panics, calls=%d running=%v", calls, h.clock.Running())
	}
}

func TestClockEmptyTimeline(t *testing.T) {
	h := newHarness(0)
	h.clock.Play()
	h.advance(0.016)
	if h.clock.Running() {
		t.Error("Expected empty timeline to stop on the first tick")
	}
	if len(h.renders) != 1 || h.renders[0] != 0 {
		t.Errorf("Expected one render at 0, got %v", h.renders)
	}
}

func TestFrameScheduler(t *testing.T) {
	s := NewFrameScheduler(100)
	if s.Interval() != 10*time.Millisecond {
		t.Errorf("Expected 10ms interval, got %v", s.Interval())
	}

	fired := make(chan struct{}, 1)
	s.Schedule(func(time.Time) { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected scheduled callback to fire")
	}

	cancel := s.Schedule(func(time.Time) { fired <- struct{}{} })
	cancel()
	select {
	case <-fired:
		t.Error("Cancelled callback fired")
	case <-time.After(50 * time.Millisecond):
	}
}
