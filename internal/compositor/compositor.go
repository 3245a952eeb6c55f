package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/desktopdoc/internal/media"
	"github.com/ivlev/desktopdoc/internal/system"
	"github.com/ivlev/desktopdoc/internal/timeline"
)

const (
	// videoEndEpsilon keeps seeks inside the last decodable frame.
	videoEndEpsilon = 0.05
	titleOpacity    = 0.9
)

// Media is what the compositor needs from the resolver.
type Media interface {
	timeline.Library
	ResolveImage(ref string) (image.Image, error)
	ResolvePlayableVideo(item *media.LibraryItem) (media.VideoHandle, error)
}

// Overlay is the persistent title layer.
type Overlay struct {
	Title     string
	ShowTitle bool
}

// Frame is the snapshot one render works from. Both crossfade layers read
// the same values.
type Frame struct {
	Time      float64
	Crossfade float64
	Playing   bool
	Overlay   Overlay
}

type Compositor struct {
	logger         zerolog.Logger
	media          Media
	text           *TextRenderer
	driftTolerance float64
	scaler         xdraw.Scaler
}

func New(logger zerolog.Logger, m Media, text *TextRenderer, driftTolerance float64) *Compositor {
	return &Compositor{
		logger:         logger,
		media:          m,
		text:           text,
		driftTolerance: driftTolerance,
		scaler:         xdraw.ApproxBiLinear,
	}
}

// Text exposes the overlay renderer so the theme color can follow config edits.
func (c *Compositor) Text() *TextRenderer {
	return c.text
}

// Render paints the frame at f.Time and publishes it. Past the end of the
// timeline, or on an empty one, the surface is left blank.
func (c *Compositor) Render(s *Surface, tl *timeline.Timeline, f Frame) {
	defer s.Publish()
	s.Clear()

	active := tl.ActiveAt(c.media, f.Time)
	if !active.Found() {
		return
	}
	canvas := s.Canvas()
	current, _ := tl.Entry(active.Index)

	if Fading(active, f.Crossfade) {
		alpha := Blend(active.LocalTime, f.Crossfade)
		prev, _ := tl.Entry(active.Index - 1)
		prevLocal := timeline.EntryDuration(prev, c.media) + active.LocalTime
		c.drawClip(canvas, prev, prevLocal, 1-alpha, f.Playing)
		c.drawClip(canvas, current, active.LocalTime, alpha, f.Playing)
	} else {
		c.drawClip(canvas, current, active.LocalTime, 1, f.Playing)
	}

	// Captions cut with the active entry instead of fading with the image.
	if current.Caption != "" {
		if err := c.text.DrawCaption(canvas, current.Caption); err != nil {
			c.logger.Warn().Err(err).Msg("caption draw failed")
		}
	}
	if f.Overlay.ShowTitle && f.Overlay.Title != "" {
		if err := c.text.DrawTitle(canvas, f.Overlay.Title, titleOpacity); err != nil {
			c.logger.Warn().Err(err).Msg("title draw failed")
		}
	}
}

// drawClip draws one entry at the given opacity. Every failure stays inside
// this call: the layer is skipped and the rest of the frame still draws.
func (c *Compositor) drawClip(dst *image.RGBA, e timeline.Entry, local, alpha float64, playing bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("entry", e.ID).Msg("clip draw aborted")
		}
	}()

	item, ok := c.media.Item(e.ItemID)
	if !ok {
		return
	}

	var src image.Image
	switch item.Kind {
	case media.KindImage:
		img, err := c.media.ResolveImage(item.Ref)
		if err != nil {
			c.logger.Warn().Err(err).Str("item", item.Name).Msg("image layer skipped")
			return
		}
		src = img

	case media.KindVideo:
		h, err := c.media.ResolvePlayableVideo(item)
		if err != nil {
			c.logger.Warn().Err(err).Str("item", item.Name).Msg("video layer skipped")
			return
		}
		target := clamp(local, 0, math.Max(0, item.Duration-videoEndEpsilon))
		if math.Abs(h.Position()-target) > c.driftTolerance {
			h.Seek(target)
		}
		h.SetPlaying(playing && target == local)
		frame, ok := h.Frame()
		if !ok {
			c.logger.Debug().Str("item", item.Name).Float64("at", target).Msg("video frame not ready")
			return
		}
		src = frame

	default:
		c.logger.Error().Stringer("kind", item.Kind).Msg("unknown media kind")
		return
	}

	c.drawCover(dst, src, alpha)
}

func (c *Compositor) drawCover(dst *image.RGBA, src image.Image, alpha float64) {
	if alpha <= 0 {
		return
	}
	bounds := dst.Bounds()
	target := CoverRect(src.Bounds(), bounds)

	if alpha >= 1 {
		c.scaler.Scale(dst, target, src, src.Bounds(), xdraw.Over, nil)
		return
	}

	layer := system.GetImage(bounds)
	defer system.PutImage(layer)
	draw.Draw(layer, bounds, image.Transparent, image.Point{}, draw.Src)
	c.scaler.Scale(layer, target, src, src.Bounds(), xdraw.Over, nil)

	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(dst, bounds, layer, bounds.Min, mask, image.Point{}, draw.Over)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
