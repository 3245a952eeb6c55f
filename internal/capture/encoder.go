package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/desktopdoc/internal/system"
)

// SinkConfig describes the raw stream handed to an encoder.
type SinkConfig struct {
	Width     int
	Height    int
	FPS       int
	Container string
}

// Sink consumes raw frames and writes encoded bytes to the writer it was
// opened with. Close flushes the encoder and must be safe to call twice.
type Sink interface {
	WriteFrame(frame *image.RGBA) error
	Close() error
}

type SinkFactory func(cfg SinkConfig, out io.Writer) (Sink, error)

// FFmpegSink pipes raw RGBA into an ffmpeg process and streams its
// container output back.
type FFmpegSink struct {
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	wait   func() error

	once     sync.Once
	closeErr error
}

// NewFFmpegSinkFactory builds sinks for the given encoder. "auto" or ""
// picks the best available H.264 encoder once.
func NewFFmpegSinkFactory(logger zerolog.Logger, encoder string, quality int) SinkFactory {
	var resolve sync.Once
	return func(cfg SinkConfig, out io.Writer) (Sink, error) {
		resolve.Do(func() {
			if encoder == "" || encoder == "auto" {
				encoder = system.GetBestH264Encoder()
			}
			logger.Info().Str("encoder", encoder).Msg("capture encoder selected")
		})
		return openFFmpegSink(cfg, out, encoder, quality)
	}
}

func openFFmpegSink(cfg SinkConfig, out io.Writer, encoder string, quality int) (*FFmpegSink, error) {
	cmd := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"r":       cfg.FPS,
	}).
		Output("pipe:", outputArgs(cfg.Container, encoder, quality)).
		Compile()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stdout = out
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &FFmpegSink{stdin: stdin, stderr: stderr, wait: cmd.Wait}, nil
}

// outputArgs maps container and encoder to ffmpeg output options. The
// output goes to a pipe, so MP4 must be fragmented.
func outputArgs(container, encoder string, quality int) ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{}
	switch strings.ToLower(container) {
	case "webm":
		args["f"] = "webm"
		args["c:v"] = "libvpx-vp9"
		args["deadline"] = "realtime"
		args["b:v"] = "0"
		if quality == 0 {
			quality = 32
		}
		args["crf"] = quality
		return args
	case "mkv":
		args["f"] = "matroska"
	default:
		args["f"] = "mp4"
		args["movflags"] = "frag_keyframe+empty_moov"
	}
	args["c:v"] = encoder
	args["pix_fmt"] = "yuv420p"
	// Encoder-specific quality options.
	for k, v := range system.QualityArgs(encoder, quality) {
		args[k] = v
	}
	return args
}

func (s *FFmpegSink) WriteFrame(frame *image.RGBA) error {
	_, err := s.stdin.Write(rawRGBA(frame))
	if err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	return nil
}

func (s *FFmpegSink) Close() error {
	s.once.Do(func() {
		s.stdin.Close()
		if err := s.wait(); err != nil {
			s.closeErr = fmt.Errorf("ffmpeg wait error: %v, output: %s", err, tail(s.stderr.String(), 512))
		}
	})
	return s.closeErr
}

// rawRGBA returns tightly packed pixels, copying only when the image has
// padding or an offset origin.
func rawRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	if img.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		return img.Pix[:b.Dx()*b.Dy()*4]
	}
	out := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[i:i+b.Dx()*4]...)
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
