package playback

import (
	"sync"
	"time"
)

// Scheduler runs fn once, on the next refresh. The returned cancel stops a
// pending call; a call already in flight is not interrupted.
type Scheduler interface {
	Schedule(fn func(now time.Time)) (cancel func())
}

// FrameScheduler emulates a display refresh signal at a fixed rate.
type FrameScheduler struct {
	interval time.Duration
}

func NewFrameScheduler(hz int) *FrameScheduler {
	if hz <= 0 {
		hz = 60
	}
	return &FrameScheduler{interval: time.Second / time.Duration(hz)}
}

func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

func (s *FrameScheduler) Schedule(fn func(now time.Time)) func() {
	t := time.AfterFunc(s.interval, func() { fn(time.Now()) })
	return func() { t.Stop() }
}

// ManualScheduler queues callbacks until Fire is called. Useful for driving
// a Clock deterministically.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualCall
}

type manualCall struct {
	fn        func(time.Time)
	cancelled bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Schedule(fn func(now time.Time)) func() {
	call := &manualCall{fn: fn}
	s.mu.Lock()
	s.pending = append(s.pending, call)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		call.cancelled = true
		s.mu.Unlock()
	}
}

// Pending reports how many live callbacks are queued.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.pending {
		if !c.cancelled {
			n++
		}
	}
	return n
}

// Fire runs every queued callback with now. Callbacks scheduled while firing
// wait for the next Fire. Returns the number of callbacks run.
func (s *ManualScheduler) Fire(now time.Time) int {
	s.mu.Lock()
	calls := s.pending
	s.pending = nil
	s.mu.Unlock()

	n := 0
	for _, c := range calls {
		s.mu.Lock()
		cancelled := c.cancelled
		s.mu.Unlock()
		if cancelled {
			continue
		}
		c.fn(now)
		n++
	}
	return n
}
