package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"
)

var background = image.NewUniform(color.RGBA{A: 0xff})

// Surface is the fixed-size output target. The compositor is its only
// writer; readers (capture, frame export) only ever see published frames.
type Surface struct {
	canvas *image.RGBA

	mu        sync.RWMutex
	published *image.RGBA
	frames    uint64
}

func NewSurface(width, height int) *Surface {
	rect := image.Rect(0, 0, width, height)
	s := &Surface{
		canvas:    image.NewRGBA(rect),
		published: image.NewRGBA(rect),
	}
	draw.Draw(s.canvas, rect, background, image.Point{}, draw.Src)
	draw.Draw(s.published, rect, background, image.Point{}, draw.Src)
	return s
}

func (s *Surface) Bounds() image.Rectangle {
	return s.canvas.Rect
}

func (s *Surface) Width() int  { return s.canvas.Rect.Dx() }
func (s *Surface) Height() int { return s.canvas.Rect.Dy() }

// Canvas is the working buffer the compositor draws into.
func (s *Surface) Canvas() *image.RGBA {
	return s.canvas
}

// Clear paints the canvas opaque black.
func (s *Surface) Clear() {
	draw.Draw(s.canvas, s.canvas.Rect, background, image.Point{}, draw.Src)
}

// Publish makes the current canvas the frame readers observe.
func (s *Surface) Publish() {
	s.mu.Lock()
	copy(s.published.Pix, s.canvas.Pix)
	s.frames++
	s.mu.Unlock()
}

// Snapshot copies the latest published frame into dst, which must have the
// surface's bounds. It returns the publish counter of the copied frame.
func (s *Surface) Snapshot(dst *image.RGBA) uint64 {
	s.mu.RLock()
	copy(dst.Pix, s.published.Pix)
	n := s.frames
	s.mu.RUnlock()
	return n
}

// EncodePNG writes the latest published frame as PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	frame := image.NewRGBA(s.Bounds())
	s.Snapshot(frame)
	return png.Encode(w, frame)
}
