package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoInfo is the metadata-only view of a video source.
type VideoInfo struct {
	Width     int
	Height    int
	Duration  float64
	FrameRate float64
}

// Prober extracts VideoInfo without decoding content.
type Prober interface {
	Probe(ctx context.Context, ref string) (VideoInfo, error)
}

// FFprobe runs ffprobe through ffmpeg-go.
type FFprobe struct{}

func (FFprobe) Probe(ctx context.Context, ref string) (VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return VideoInfo{}, err
	}
	out, err := ffmpeg.Probe(ref)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe([]byte(out))
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Duration   string `json:"duration"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func parseProbe(data []byte) (VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info VideoInfo
	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.FrameRate = parseFrameRate(s.RFrameRate)
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			info.Duration = d
		}
		found = true
		break
	}
	if !found {
		return VideoInfo{}, errors.New("no video stream")
	}

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	}
	if info.Duration <= 0 {
		return VideoInfo{}, errors.New("unknown duration")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, errors.New("unknown frame size")
	}
	if info.FrameRate <= 0 {
		info.FrameRate = 30
	}
	return info, nil
}

// parseFrameRate handles "30/1", "30000/1001" and plain numbers.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
