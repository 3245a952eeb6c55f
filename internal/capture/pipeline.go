package capture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/desktopdoc/internal/system"
)

const ArtifactPrefix = "desktop-doc-"

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// RecordingError is a capture or encoder failure. The pipeline returns to
// Idle and keeps whatever was already encoded.
type RecordingError struct {
	Op  string
	Err error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording %s: %v", e.Op, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

// FrameSource is the output surface as seen by the capture side.
type FrameSource interface {
	Bounds() image.Rectangle
	Snapshot(dst *image.RGBA) uint64
}

// Transport is the playback control a recording drives: Restart forces a
// full pass from zero, Halt stops playback.
type Transport interface {
	Restart()
	Halt()
}

type Options struct {
	Logger    zerolog.Logger
	OutputDir string
	FPS       int
	Container string
	NewSink   SinkFactory
	// Now defaults to time.Now; it names artifacts.
	Now func() time.Time
}

// Artifact is one finalized recording.
type Artifact struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Frames  int    `json:"frames"`
	Dropped int    `json:"dropped"`
	// Partial is set when the encoder failed mid-recording.
	Partial bool `json:"partial"`
}

type recording struct {
	id        string
	sink      Sink
	buf       *chunkBuffer
	transport Transport
	started   time.Time
	// Set by End before stop is closed; zero on teardown.
	stoppedAt time.Time

	stop chan struct{}
	done chan struct{}

	// Written by the pump, read after done is closed.
	frames  int
	dropped int
	err     error
}

// Pipeline taps a FrameSource at a fixed rate into an encoder sink. Begin
// and End are guarded so repeated calls in the same state have no effect.
type Pipeline struct {
	logger    zerolog.Logger
	outputDir string
	fps       int
	container string
	newSink   SinkFactory
	now       func() time.Time

	mu      sync.Mutex
	active  *recording
	pending *recording
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		logger:    opts.Logger,
		outputDir: opts.OutputDir,
		fps:       opts.FPS,
		container: opts.Container,
		newSink:   opts.NewSink,
		now:       opts.Now,
	}
	if p.fps <= 0 {
		p.fps = 30
	}
	if p.container == "" {
		p.container = "mp4"
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return Recording
	}
	return Idle
}

// Begin starts a recording of src and restarts playback through t. It is a
// no-op while already recording. Output left over from a failed recording
// is finalized first.
func (p *Pipeline) Begin(src FrameSource, t Transport) error {
	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		p.logger.Debug().Msg("begin ignored, already recording")
		return nil
	}
	leftover := p.pending
	p.pending = nil
	p.mu.Unlock()

	if leftover != nil {
		if _, err := p.finalize(leftover); err != nil {
			p.logger.Warn().Err(err).Msg("partial recording lost")
		}
	}

	b := src.Bounds()
	buf := &chunkBuffer{}
	sink, err := p.newSink(SinkConfig{
		Width:     b.Dx(),
		Height:    b.Dy(),
		FPS:       p.fps,
		Container: p.container,
	}, buf)
	if err != nil {
		return &RecordingError{Op: "begin", Err: err}
	}

	rec := &recording{
		id:        uuid.NewString(),
		sink:      sink,
		buf:       buf,
		transport: t,
		started:   time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.mu.Lock()
	p.active = rec
	p.mu.Unlock()

	t.Restart()
	go p.pump(rec, src)

	p.logger.Info().Str("recording", rec.id).Int("width", b.Dx()).Int("height", b.Dy()).Int("fps", p.fps).Msg("recording started")
	return nil
}

// maxCatchUp bounds how many missed slots one tick fills, in seconds of
// output.
const maxCatchUp = 1

// pump keeps the frame count in step with wall time since Begin. Slots
// missed behind a slow encoder are filled with the current snapshot, so the
// artifact lasts as long as the pass it recorded.
func (p *Pipeline) pump(rec *recording, src FrameSource) {
	defer close(rec.done)

	frame := system.GetImage(src.Bounds())
	defer system.PutImage(frame)

	interval := time.Second / time.Duration(p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.stop:
			if !rec.stoppedAt.IsZero() {
				p.catchUp(rec, src, frame, rec.stoppedAt)
			}
			return
		case now := <-ticker.C:
			if !p.catchUp(rec, src, frame, now) {
				return
			}
		}
	}
}

// catchUp writes the snapshot once per slot owed up to at. Slots beyond
// maxCatchUp seconds of backlog are counted as dropped.
func (p *Pipeline) catchUp(rec *recording, src FrameSource, frame *image.RGBA, at time.Time) bool {
	target := expectedFrames(at.Sub(rec.started), p.fps)
	owed := target - rec.frames - rec.dropped
	if owed <= 0 {
		return true
	}
	if limit := maxCatchUp * p.fps; owed > limit {
		rec.dropped += owed - limit
		owed = limit
	}

	src.Snapshot(frame)
	for i := 0; i < owed; i++ {
		if err := rec.sink.WriteFrame(frame); err != nil {
			rec.err = &RecordingError{Op: "encode", Err: err}
			p.fail(rec)
			return false
		}
		rec.frames++
	}
	return true
}

// fail moves a broken recording aside so the next End still finalizes
// what it buffered.
func (p *Pipeline) fail(rec *recording) {
	if err := rec.sink.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("encoder close after failure")
	}
	p.mu.Lock()
	owned := p.active == rec
	if owned {
		p.active = nil
		p.pending = rec
	}
	p.mu.Unlock()

	if owned {
		p.logger.Error().Err(rec.err).Str("recording", rec.id).Int("frames", rec.frames).Msg("recording failed, back to idle")
	}
}

// End stops the active recording, halts playback and writes the artifact.
// Without an active recording it finalizes leftover output from a failed
// one and leaves playback alone, or does nothing and returns nil.
func (p *Pipeline) End() (*Artifact, error) {
	p.mu.Lock()
	rec := p.active
	live := rec != nil
	if !live {
		rec = p.pending
	}
	p.active = nil
	p.pending = nil
	p.mu.Unlock()

	if rec == nil {
		return nil, nil
	}

	if live {
		rec.stoppedAt = time.Now()
	}
	close(rec.stop)
	<-rec.done
	if err := rec.sink.Close(); err != nil && rec.err == nil {
		rec.err = &RecordingError{Op: "finalize", Err: err}
	}
	if live {
		rec.transport.Halt()
	}

	art, err := p.finalize(rec)
	if err != nil {
		return nil, err
	}
	p.report(rec, art)
	return art, nil
}

// finalize writes the buffered chunks of a stopped recording.
func (p *Pipeline) finalize(rec *recording) (*Artifact, error) {
	if rec.buf.Len() == 0 {
		if rec.err != nil {
			return nil, rec.err
		}
		return nil, &RecordingError{Op: "finalize", Err: errors.New("encoder produced no output")}
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, &RecordingError{Op: "finalize", Err: err}
	}

	name := fmt.Sprintf("%s%d.%s", ArtifactPrefix, p.now().UnixMilli(), p.container)
	path := filepath.Join(p.outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, &RecordingError{Op: "finalize", Err: err}
	}
	n, err := rec.buf.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, &RecordingError{Op: "finalize", Err: err}
	}

	return &Artifact{
		Name:    name,
		Path:    path,
		Size:    n,
		Frames:  rec.frames,
		Dropped: rec.dropped,
		Partial: rec.err != nil,
	}, nil
}

func (p *Pipeline) report(rec *recording, art *Artifact) {
	ev := p.logger.Info().
		Str("recording", rec.id).
		Str("file", art.Name).
		Int64("bytes", art.Size).
		Int("chunks", rec.buf.Chunks()).
		Int("frames", art.Frames).
		Int("dropped", art.Dropped).
		Bool("partial", art.Partial)
	if u, err := system.ProcessUsage(); err == nil {
		ev = ev.Float64("cpu_percent", u.CPUPercent).Uint64("rss_bytes", u.RSSBytes)
	}
	ev.Msg("recording finalized")
}

// Close tears the pipeline down without writing anything.
func (p *Pipeline) Close() {
	p.mu.Lock()
	rec := p.active
	pending := p.pending
	p.active = nil
	p.pending = nil
	p.mu.Unlock()

	if rec != nil {
		close(rec.stop)
		<-rec.done
		rec.sink.Close()
		p.logger.Warn().Str("recording", rec.id).Msg("recording discarded on teardown")
	}
	if pending != nil {
		p.logger.Warn().Str("recording", pending.id).Msg("partial recording discarded on teardown")
	}
}

func expectedFrames(d time.Duration, fps int) int {
	return int(d.Seconds() * float64(fps))
}
