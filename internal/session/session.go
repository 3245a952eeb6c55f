// Package session wires the player together. A Session owns one of each
// component and serializes every operation on them, including the clock's
// ticks, through a single mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/desktopdoc/internal/capture"
	"github.com/ivlev/desktopdoc/internal/compositor"
	"github.com/ivlev/desktopdoc/internal/config"
	"github.com/ivlev/desktopdoc/internal/media"
	"github.com/ivlev/desktopdoc/internal/playback"
	"github.com/ivlev/desktopdoc/internal/timeline"
)

var (
	ErrRecordingActive = errors.New("not allowed while recording")
	ErrClosed          = errors.New("session closed")
)

type Options struct {
	Config *config.Config
	Logger zerolog.Logger
	// Resolver defaults to one built from Config.
	Resolver *media.Resolver
	// Scheduler defaults to a FrameScheduler at Config.RefreshRate.
	Scheduler playback.Scheduler
	// NewSink defaults to the ffmpeg encoder.
	NewSink capture.SinkFactory
	Now     func() time.Time
}

type Session struct {
	mu     sync.Mutex
	logger zerolog.Logger
	cfg    config.Config

	resolution config.Resolution
	accent     string
	crossfade  float64
	overlay    compositor.Overlay

	resolver   *media.Resolver
	timeline   *timeline.Timeline
	surface    *compositor.Surface
	compositor *compositor.Compositor
	clock      *playback.Clock
	capture    *capture.Pipeline

	// stopped is closed and replaced every time playback leaves Running.
	stopped chan struct{}
	closed  bool
}

func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := *opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	res, err := config.ParseResolution(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	accent, err := config.ParseColor(cfg.AccentColor)
	if err != nil {
		return nil, err
	}
	text, err := compositor.NewTextRenderer(accent)
	if err != nil {
		return nil, fmt.Errorf("text renderer: %w", err)
	}

	s := &Session{
		logger:     opts.Logger,
		cfg:        cfg,
		resolution: res,
		accent:     cfg.AccentColor,
		crossfade:  cfg.Crossfade,
		overlay:    compositor.Overlay{Title: cfg.Title, ShowTitle: cfg.ShowTitle},
		resolver:   opts.Resolver,
		timeline:   timeline.New(cfg.ImageDuration),
		surface:    compositor.NewSurface(res.Width, res.Height),
		stopped:    make(chan struct{}),
	}

	if s.resolver == nil {
		s.resolver = media.NewResolver(media.Options{
			Logger:  opts.Logger.With().Str("component", "media").Logger(),
			Workers: cfg.Workers,
		})
	}
	s.compositor = compositor.New(
		opts.Logger.With().Str("component", "compositor").Logger(),
		s.resolver, text, cfg.DriftTolerance,
	)

	sched := opts.Scheduler
	if sched == nil {
		sched = playback.NewFrameScheduler(cfg.RefreshRate)
	}
	s.clock = playback.New(playback.Options{
		Logger:    opts.Logger.With().Str("component", "clock").Logger(),
		Scheduler: lockedScheduler{inner: sched, mu: &s.mu},
		Now:       opts.Now,
		Total:     s.total,
		Render:    s.render,
		OnStop:    s.onStop,
	})

	newSink := opts.NewSink
	if newSink == nil {
		newSink = capture.NewFFmpegSinkFactory(
			opts.Logger.With().Str("component", "encoder").Logger(),
			cfg.VideoEncoder, cfg.Quality,
		)
	}
	s.capture = capture.NewPipeline(capture.Options{
		Logger:    opts.Logger.With().Str("component", "capture").Logger(),
		OutputDir: cfg.OutputDir,
		FPS:       cfg.CaptureFPS,
		Container: cfg.Container,
		NewSink:   newSink,
		Now:       opts.Now,
	})

	s.render(0)
	return s, nil
}

// lockedScheduler makes every fired tick acquire the session lock, so
// ticks never overlap each other or any session operation.
type lockedScheduler struct {
	inner playback.Scheduler
	mu    *sync.Mutex
}

func (l lockedScheduler) Schedule(fn func(now time.Time)) func() {
	return l.inner.Schedule(func(now time.Time) {
		l.mu.Lock()
		defer l.mu.Unlock()
		fn(now)
	})
}

// Callbacks below run with s.mu held.

func (s *Session) total() float64 {
	return s.timeline.TotalDuration(s.resolver)
}

func (s *Session) render(t float64) {
	s.compositor.Render(s.surface, s.timeline, compositor.Frame{
		Time:      t,
		Crossfade: s.crossfade,
		Playing:   s.clock != nil && s.clock.Running(),
		Overlay:   s.overlay,
	})
}

func (s *Session) onStop(ended bool) {
	s.resolver.PauseVideos()
	close(s.stopped)
	s.stopped = make(chan struct{})
	if ended {
		s.logger.Info().Float64("progress", s.clock.Progress()).Msg("playback ended")
	}
}

// edited keeps progress valid after any change to the timeline and shows
// the change while paused.
func (s *Session) edited() {
	s.clock.Reconcile()
	s.clock.Refresh()
}

// transport lets the capture pipeline drive playback. Its methods run from
// Begin and End, which the session calls with s.mu held.
type transport struct{ s *Session }

func (t transport) Restart() {
	t.s.clock.StartFrom(0)
	t.s.render(0)
}

func (t transport) Halt() {
	t.s.clock.Stop()
}

// Ingest adds files to the library. The library has its own lock, so the
// session stays responsive while files are decoded and probed.
func (s *Session) Ingest(ctx context.Context, paths []string) ([]*media.LibraryItem, []error) {
	return s.resolver.Ingest(ctx, paths)
}

func (s *Session) Library() []*media.LibraryItem {
	return s.resolver.Items()
}

// Place appends a placement of the library item to the timeline.
func (s *Session) Place(itemID string) (timeline.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolver.Item(itemID); !ok {
		return timeline.Entry{}, media.ErrNotFound
	}
	e := s.timeline.Add(itemID)
	s.edited()
	return e, nil
}

func (s *Session) RemoveEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.timeline.Remove(id); err != nil {
		return err
	}
	s.edited()
	return nil
}

// RemoveItem releases a library item. Its placements stay on the timeline
// as dangling entries unless prune is set.
func (s *Session) RemoveItem(itemID string, prune bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.resolver.Remove(itemID); err != nil {
		return err
	}
	if prune {
		n := s.timeline.RemoveItem(itemID)
		s.logger.Debug().Str("item", itemID).Int("entries", n).Msg("placements pruned")
	}
	s.edited()
	return nil
}

func (s *Session) SetImageDuration(id string, d float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.timeline.SetImageDuration(id, d)
	if err != nil {
		return 0, err
	}
	s.edited()
	return stored, nil
}

func (s *Session) SetCaption(id, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.timeline.SetCaption(id, caption); err != nil {
		return err
	}
	s.edited()
	return nil
}

func (s *Session) Reorder(id string, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.timeline.Reorder(id, target); err != nil {
		return err
	}
	s.edited()
	return nil
}

// SetCrossfade clamps v into the allowed window and returns the stored value.
func (s *Session) SetCrossfade(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossfade = config.ClampCrossfade(v)
	s.edited()
	return s.crossfade
}

// SetResolution swaps the output surface for one of the presets.
func (s *Session) SetResolution(name string) error {
	return s.ApplySettings(Settings{Resolution: &name})
}

func (s *Session) SetTitle(title string, show bool) {
	s.ApplySettings(Settings{Title: &title, ShowTitle: &show})
}

func (s *Session) SetAccent(hex string) error {
	return s.ApplySettings(Settings{Accent: &hex})
}

// Settings is a partial settings edit; nil fields are left unchanged.
type Settings struct {
	Crossfade  *float64 `json:"crossfade"`
	Resolution *string  `json:"resolution"`
	Title      *string  `json:"title"`
	ShowTitle  *bool    `json:"showTitle"`
	Accent     *string  `json:"accent"`
}

// ApplySettings validates every field of u first and applies them together,
// so a rejected edit changes nothing.
func (s *Session) ApplySettings(u Settings) error {
	var (
		res    config.Resolution
		accent color.RGBA
		err    error
	)
	if u.Resolution != nil {
		if res, err = config.ParseResolution(*u.Resolution); err != nil {
			return err
		}
	}
	if u.Accent != nil {
		if accent, err = config.ParseColor(*u.Accent); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Resolution != nil && res != s.resolution && s.capture.State() == capture.Recording {
		return ErrRecordingActive
	}

	if u.Resolution != nil && res != s.resolution {
		s.resolution = res
		s.surface = compositor.NewSurface(res.Width, res.Height)
	}
	if u.Accent != nil {
		s.accent = *u.Accent
		s.compositor.Text().SetAccent(accent)
	}
	if u.Crossfade != nil {
		s.crossfade = config.ClampCrossfade(*u.Crossfade)
	}
	if u.Title != nil {
		s.overlay.Title = *u.Title
	}
	if u.ShowTitle != nil {
		s.overlay.ShowTitle = *u.ShowTitle
	}
	s.edited()
	return nil
}

func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.clock.Play()
	}
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Stop()
}

func (s *Session) Toggle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.clock.Toggle()
	}
}

func (s *Session) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Seek(t)
}

// StartRecording begins a capture of the output surface; playback restarts
// from zero. A no-op while already recording.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.capture.Begin(s.surface, transport{s})
}

// StopRecording finalizes the capture and stops playback. Returns nil
// without an artifact when nothing was being recorded.
func (s *Session) StopRecording() (*capture.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture.End()
}

func (s *Session) Recordings() ([]capture.RecordingInfo, error) {
	return s.capture.ListRecordings()
}

// WaitStopped blocks until playback leaves Running, returning at once when
// it is not running.
func (s *Session) WaitStopped(ctx context.Context) error {
	s.mu.Lock()
	if !s.clock.Running() {
		s.mu.Unlock()
		return nil
	}
	ch := s.stopped
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteFrame encodes the latest published frame as PNG.
func (s *Session) WriteFrame(w io.Writer) error {
	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	return surface.EncodePNG(w)
}

// Close stops playback, discards an unfinished recording and releases every
// media resource.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.clock.Stop()
	s.mu.Unlock()

	s.capture.Close()
	return s.resolver.Close()
}
