package media

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoHandle is a time-addressable frame source. It is silent, does not
// start on its own and only moves when told to play or seek.
type VideoHandle interface {
	// Position is the handle's own presentation time in seconds.
	Position() float64
	Seek(t float64)
	SetPlaying(playing bool)
	// Frame returns the frame at Position, or false while not enough data
	// is buffered to present one.
	Frame() (image.Image, bool)
	Close() error
}

// VideoOpener creates the playable handle for an item.
type VideoOpener func(item *LibraryItem) (VideoHandle, error)

// decodeBuffer is how many frames a decoder may run ahead.
const decodeBuffer = 8

type videoFrame struct {
	img *image.RGBA
	pts float64
}

type decoder struct {
	cmd    *exec.Cmd
	frames chan videoFrame
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *decoder) stop() {
	d.cancel()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	<-d.done
}

// FFmpegVideo decodes raw RGBA frames from an ffmpeg process started at the
// last seek position and presents them against its own wall-clock timeline.
type FFmpegVideo struct {
	logger   zerolog.Logger
	path     string
	width    int
	height   int
	fps      float64
	duration float64
	now      func() time.Time

	mu       sync.Mutex
	playing  bool
	anchor   float64
	anchorAt time.Time
	dec      *decoder
	current  image.Image
	pending  *videoFrame
	closed   bool
}

// NewFFmpegOpener returns a VideoOpener backed by FFmpegVideo.
func NewFFmpegOpener(logger zerolog.Logger) VideoOpener {
	return func(item *LibraryItem) (VideoHandle, error) {
		if item.Kind != KindVideo {
			return nil, fmt.Errorf("item %s is not a video", item.ID)
		}
		fps := item.FrameRate
		if fps <= 0 {
			fps = 30
		}
		return &FFmpegVideo{
			logger:   logger.With().Str("video", item.Name).Logger(),
			path:     item.Ref,
			width:    item.Width,
			height:   item.Height,
			fps:      fps,
			duration: item.Duration,
			now:      time.Now,
		}, nil
	}
}

func (v *FFmpegVideo) Position() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position()
}

func (v *FFmpegVideo) position() float64 {
	pos := v.anchor
	if v.playing {
		pos += v.now().Sub(v.anchorAt).Seconds()
	}
	if pos > v.duration {
		pos = v.duration
	}
	return pos
}

func (v *FFmpegVideo) Seek(t float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if t < 0 {
		t = 0
	}
	v.anchor = t
	v.anchorAt = v.now()
	v.restart(t)
}

func (v *FFmpegVideo) SetPlaying(playing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing == playing {
		return
	}
	v.anchor = v.position()
	v.anchorAt = v.now()
	v.playing = playing
}

func (v *FFmpegVideo) Frame() (image.Image, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, false
	}
	if v.dec == nil {
		v.restart(v.anchor)
	}

	due := v.position() + 0.5/v.fps
	for {
		var f videoFrame
		if v.pending != nil {
			f = *v.pending
			v.pending = nil
		} else {
			select {
			case next, ok := <-v.dec.frames:
				if !ok {
					return v.current, v.current != nil
				}
				f = next
			default:
				return v.current, v.current != nil
			}
		}
		if f.pts > due {
			v.pending = &f
			return v.current, v.current != nil
		}
		v.current = f.img
	}
}

func (v *FFmpegVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if v.dec != nil {
		v.dec.stop()
		v.dec = nil
	}
	v.current = nil
	v.pending = nil
	return nil
}

// restart replaces the decoder with one starting at t. Caller holds mu.
func (v *FFmpegVideo) restart(t float64) {
	if v.dec != nil {
		v.dec.stop()
		v.dec = nil
	}
	v.current = nil
	v.pending = nil

	dec, err := v.startDecoder(t)
	if err != nil {
		v.logger.Warn().Err(err).Float64("at", t).Msg("video decoder start failed")
		// An empty, closed channel keeps Frame reporting "not ready".
		frames := make(chan videoFrame)
		close(frames)
		done := make(chan struct{})
		close(done)
		v.dec = &decoder{cmd: &exec.Cmd{}, frames: frames, cancel: func() {}, done: done}
		return
	}
	v.dec = dec
}

func (v *FFmpegVideo) startDecoder(t float64) (*decoder, error) {
	cmd := ffmpeg.Input(v.path, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", t)}).
		Output("pipe:", ffmpeg.KwArgs{
			"map":     "0:v:0",
			"format":  "rawvideo",
			"pix_fmt": "rgba",
			"s":       fmt.Sprintf("%dx%d", v.width, v.height),
			"r":       fmt.Sprintf("%f", v.fps),
		}).
		Compile()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dec := &decoder{
		cmd:    cmd,
		frames: make(chan videoFrame, decodeBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(dec.done)
		defer close(dec.frames)
		defer cmd.Wait()

		frameSize := v.width * v.height * 4
		for n := 0; ; n++ {
			img := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
			if _, err := io.ReadFull(stdout, img.Pix[:frameSize]); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					v.logger.Debug().Err(err).Msg("video decoder stopped")
				}
				return
			}
			frame := videoFrame{img: img, pts: t + float64(n)/v.fps}
			select {
			case dec.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return dec, nil
}
