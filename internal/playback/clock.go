package playback

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// rewindEpsilon is how far progress may sit past the total before it is
// considered invalid and rewound.
const rewindEpsilon = 1e-3

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

type Options struct {
	Logger    zerolog.Logger
	Scheduler Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
	// Total returns the current timeline duration in seconds.
	Total func() float64
	// Render paints the frame at t.
	Render func(t float64)
	// OnStop is called when the clock leaves Running. ended is true when
	// playback reached the end of the timeline.
	OnStop func(ended bool)
}

// Clock is the single driver of global time. It holds no lock: the owner
// serializes every call, including the callbacks its Scheduler fires.
type Clock struct {
	logger    zerolog.Logger
	scheduler Scheduler
	now       func() time.Time
	total     func() float64
	render    func(t float64)
	onStop    func(ended bool)

	state        State
	progress     float64
	virtualStart time.Time
	// generation invalidates ticks that were already fired when the clock
	// was stopped or restarted.
	generation uint64
	cancel     func()
}

func New(opts Options) *Clock {
	c := &Clock{
		logger:    opts.Logger,
		scheduler: opts.Scheduler,
		now:       opts.Now,
		total:     opts.Total,
		render:    opts.Render,
		onStop:    opts.OnStop,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.onStop == nil {
		c.onStop = func(bool) {}
	}
	return c
}

func (c *Clock) State() State      { return c.state }
func (c *Clock) Running() bool     { return c.state == Running }
func (c *Clock) Progress() float64 { return c.progress }

// StartFrom enters Running with the virtual start placed so that elapsed
// time equals from.
func (c *Clock) StartFrom(from float64) {
	c.cancelPending()
	c.progress = clamp(from, 0, c.total())
	c.virtualStart = c.now().Add(-seconds(c.progress))
	c.state = Running
	c.generation++
	c.schedule()
}

// Play resumes from the stored progress. At or past the end it restarts
// from zero.
func (c *Clock) Play() {
	if c.state == Running {
		return
	}
	from := c.progress
	if from >= c.total() {
		from = 0
	}
	c.StartFrom(from)
}

// Stop cancels the pending tick and keeps progress.
func (c *Clock) Stop() {
	if c.state != Running {
		return
	}
	c.halt()
	c.onStop(false)
}

func (c *Clock) Toggle() {
	if c.state == Running {
		c.Stop()
		return
	}
	c.Play()
}

// Seek moves progress to t. While stopped it renders exactly one frame.
func (c *Clock) Seek(t float64) {
	t = clamp(t, 0, c.total())
	c.progress = t
	if c.state == Running {
		c.virtualStart = c.now().Add(-seconds(t))
		return
	}
	c.draw(t)
}

// Refresh repaints the stored progress while stopped. The running tick loop
// picks edits up on its own.
func (c *Clock) Refresh() {
	if c.state != Running {
		c.draw(c.progress)
	}
}

// Reconcile rewinds progress to zero when the timeline shrank below it.
// Reports whether it did.
func (c *Clock) Reconcile() bool {
	if c.progress <= c.total()+rewindEpsilon {
		return false
	}
	c.logger.Debug().Float64("progress", c.progress).Msg("timeline shrank, rewinding")
	c.progress = 0
	if c.state == Running {
		c.virtualStart = c.now()
	}
	return true
}

func (c *Clock) schedule() {
	gen := c.generation
	c.cancel = c.scheduler.Schedule(func(now time.Time) {
		c.tick(gen, now)
	})
}

func (c *Clock) tick(gen uint64, now time.Time) {
	if gen != c.generation || c.state != Running {
		return
	}
	c.cancel = nil

	total := c.total()
	elapsed := clamp(now.Sub(c.virtualStart).Seconds(), 0, total)
	c.progress = elapsed
	c.draw(elapsed)

	if elapsed >= total {
		c.halt()
		c.logger.Debug().Float64("progress", elapsed).Msg("playback reached the end")
		c.onStop(true)
		return
	}
	c.schedule()
}

func (c *Clock) halt() {
	c.cancelPending()
	c.generation++
	c.state = Stopped
}

func (c *Clock) cancelPending() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// draw keeps a panicking render from killing the tick loop.
func (c *Clock) draw(t float64) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Float64("t", t).Msg("render failed")
		}
	}()
	c.render(t)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
