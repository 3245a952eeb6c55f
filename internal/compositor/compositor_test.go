package compositor

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ivlev/desktopdoc/internal/config"
	"github.com/ivlev/desktopdoc/internal/media"
	"github.com/ivlev/desktopdoc/internal/timeline"
)

type fakeVideo struct {
	pos     float64
	seeks   []float64
	playing bool
	frame   image.Image
}

func (v *fakeVideo) Position() float64 { return v.pos }
func (v *fakeVideo) Seek(t float64) {
	v.seeks = append(v.seeks, t)
	v.pos = t
}
func (v *fakeVideo) SetPlaying(p bool) { v.playing = p }
func (v *fakeVideo) Frame() (image.Image, bool) {
	return v.frame, v.frame != nil
}
func (v *fakeVideo) Close() error { return nil }

type fakeMedia struct {
	items  map[string]*media.LibraryItem
	images map[string]image.Image
	videos map[string]*fakeVideo
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		items:  map[string]*media.LibraryItem{},
		images: map[string]image.Image{},
		videos: map[string]*fakeVideo{},
	}
}

func (m *fakeMedia) Item(id string) (*media.LibraryItem, bool) {
	item, ok := m.items[id]
	return item, ok
}

func (m *fakeMedia) ResolveImage(ref string) (image.Image, error) {
	img, ok := m.images[ref]
	if !ok {
		return nil, &media.DecodeError{Ref: ref, Err: errors.New("corrupt")}
	}
	return img, nil
}

func (m *fakeMedia) ResolvePlayableVideo(item *media.LibraryItem) (media.VideoHandle, error) {
	return m.videos[item.ID], nil
}

func (m *fakeMedia) addImage(id string, c color.Color) {
	m.items[id] = &media.LibraryItem{ID: id, Kind: media.KindImage, Ref: id, Width: 16, Height: 9}
	m.images[id] = solid(16, 9, c)
}

func (m *fakeMedia) addVideo(id string, duration float64, frame image.Image) *fakeVideo {
	m.items[id] = &media.LibraryItem{ID: id, Kind: media.KindVideo, Ref: id, Width: 16, Height: 9, Duration: duration}
	v := &fakeVideo{frame: frame}
	m.videos[id] = v
	return v
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func newTestCompositor(t *testing.T, m Media) *Compositor {
	t.Helper()
	text, err := NewTextRenderer(color.RGBA{R: 255, G: 46, B: 136, A: 255})
	if err != nil {
		t.Fatal(err)
	}
	return New(zerolog.Nop(), m, text, 0.1)
}

func centerPixel(s *Surface) color.RGBA {
	frame := image.NewRGBA(s.Bounds())
	s.Snapshot(frame)
	return frame.RGBAAt(s.Width()/2, s.Height()/2)
}

func near(a uint8, b int) bool {
	return math.Abs(float64(int(a)-b)) <= 3
}

func twoImageTimeline(m *fakeMedia) *timeline.Timeline {
	m.addImage("red", red)
	m.addImage("blue", blue)
	tl := timeline.New(config.Default().ImageDuration)
	a := tl.Add("red")
	b := tl.Add("blue")
	tl.SetImageDuration(a.ID, 2)
	tl.SetImageDuration(b.ID, 2)
	return tl
}

func TestRenderSingleClip(t *testing.T) {
	m := newFakeMedia()
	tl := twoImageTimeline(m)
	c := newTestCompositor(t, m)
	s := NewSurface(64, 36)

	c.Render(s, tl, Frame{Time: 1.0, Crossfade: 1.0})
	if got := centerPixel(s); got != red {
		t.Errorf("Expected red, got %+v", got)
	}
}

func TestRenderCrossfade(t *testing.T) {
	m := newFakeMedia()
	tl := twoImageTimeline(m)
	c := newTestCompositor(t, m)
	s := NewSurface(64, 36)

	c.Render(s, tl, Frame{Time: 2.5, Crossfade: 1.0})
	got := centerPixel(s)
	if !near(got.R, 64) || !near(got.B, 128) {
		t.Errorf("Expected half dissolve (~64,0,~128), got %+v", got)
	}

	c.Render(s, tl, Frame{Time: 3.5, Crossfade: 1.0})
	if got := centerPixel(s); got != blue {
		t.Errorf("Expected blue after the window, got %+v", got)
	}
}

func TestRenderInstantCut(t *testing.T) {
	m := newFakeMedia()
	tl := twoImageTimeline(m)
	c := newTestCompositor(t, m)
	s := NewSurface(64, 36)

	c.Render(s, tl, Frame{Time: 2.0, Crossfade: 0})
	if got := centerPixel(s); got != blue {
		t.Errorf("Expected blue with zero crossfade, got %+v", got)
	}
}

func TestRenderPastEndIsBlank(t *testing.T) {
	m := newFakeMedia()
	tl := twoImageTimeline(m)
	c := newTestCompositor(t, m)
	s := NewSurface(64, 36)

	c.Render(s, tl, Frame{Time: 4.0, Crossfade: 1.0, Overlay: Overlay{Title: "Demo", ShowTitle: true}})
	frame := image.NewRGBA(s.Bounds())
	s.Snapshot(frame)
	black := color.RGBA{A: 255}
	for y := 0; y < s.Height(); y++ {
		for x := 0; x < s.Width(); x++ {
			if frame.RGBAAt(x, y) != black {
				t.Fatalf("Expected blank surface, pixel (%d,%d) is %+v", x, y, frame.RGBAAt(x, y))
			}
		}
	}
}

func TestRenderSkipsBrokenLayer(t *testing.T) {
	m := newFakeMedia()
	tl := twoImageTimeline(m)
	delete(m.images, "blue")
	c := newTestCompositor(t, m)
	s := NewSurface(64, 36)

	// The broken front layer is skipped; the back layer still draws.
	c.Render(s, tl, Frame{Time: 2.5, Crossfade: 1.0})
	got := centerPixel(s)
	if !near(got.R, 128) || got.B != 0 {
		t.Errorf("Expected only the fading red layer, got %+v", got)
	}
}

func TestRenderVideoDriftCorrection(t *testing.T) {
	m := newFakeMedia()
	v := m.addVideo("clip", 6.0, solid(16, 9, blue))
	tl := timeline.New(config.Default().ImageDuration)
	tl.Add("clip")
	c := newTestCompositor(t, m)
	s := NewSurface(32, 18)

	c.Render(s, tl, Frame{Time: 1.0, Playing: true})
	if len(v.seeks) != 1 || v.seeks[0] != 1.0 {
		t.Fatalf("Expected a seek to 1.0, got %v", v.seeks)
	}
	if !v.playing {
		t.Error("Expected handle to follow playing state")
	}

	v.pos = 1.05
	c.Render(s, tl, Frame{Time: 1.1, Playing: true})
	if len(v.seeks) != 1 {
		t.Errorf("Drift under tolerance should not seek, got %v", v.seeks)
	}

	c.Render(s, tl, Frame{Time: 5.99, Playing: true})
	if last := v.seeks[len(v.seeks)-1]; math.Abs(last-5.95) > 1e-9 {
		t.Errorf("Expected seek clamped to 5.95, got %v", last)
	}
	if got := centerPixel(s); got != blue {
		t.Errorf("Expected video frame drawn, got %+v", got)
	}
}

func TestRenderVideoNotReady(t *testing.T) {
	m := newFakeMedia()
	m.addVideo("clip", 3.0, nil)
	tl := timeline.New(config.Default().ImageDuration)
	tl.Add("clip")
	c := newTestCompositor(t, m)
	s := NewSurface(32, 18)

	c.Render(s, tl, Frame{Time: 0.5})
	if got := centerPixel(s); got != (color.RGBA{A: 255}) {
		t.Errorf("Expected blank layer while buffering, got %+v", got)
	}
}

func TestRenderOverlays(t *testing.T) {
	m := newFakeMedia()
	m.addImage("black", color.RGBA{A: 255})
	tl := timeline.New(config.Default().ImageDuration)
	e := tl.Add("black")
	tl.SetCaption(e.ID, "install the agent and restart")
	c := newTestCompositor(t, m)
	s := NewSurface(640, 360)

	c.Render(s, tl, Frame{Time: 0.5, Overlay: Overlay{Title: "Setup guide", ShowTitle: true}})
	frame := image.NewRGBA(s.Bounds())
	s.Snapshot(frame)

	if !hasBrightPixel(frame, image.Rect(0, 0, 320, 100)) {
		t.Error("Expected title text in the top-left region")
	}
	if !hasBrightPixel(frame, image.Rect(0, 260, 640, 360)) {
		t.Error("Expected caption text in the bottom region")
	}
}

func hasBrightPixel(img *image.RGBA, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R > 200 && c.G > 200 && c.B > 200 {
				return true
			}
		}
	}
	return false
}
