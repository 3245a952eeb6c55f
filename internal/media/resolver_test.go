package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

type fakeProber struct {
	info VideoInfo
	err  error
}

func (p fakeProber) Probe(ctx context.Context, ref string) (VideoInfo, error) {
	return p.info, p.err
}

type fakeHandle struct {
	closed  bool
	playing bool
}

func (h *fakeHandle) Position() float64          { return 0 }
func (h *fakeHandle) Seek(t float64)             {}
func (h *fakeHandle) SetPlaying(p bool)          { h.playing = p }
func (h *fakeHandle) Frame() (image.Image, bool) { return nil, false }
func (h *fakeHandle) Close() error               { h.closed = true; return nil }

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestResolver(opts Options) *Resolver {
	opts.Logger = zerolog.Nop()
	return NewResolver(opts)
}

func TestResolveImageIsCached(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 4, 3)

	var decodes int32
	r := newTestResolver(Options{Decode: func(ref string) (image.Image, error) {
		atomic.AddInt32(&decodes, 1)
		return DecodeFile(ref)
	}})

	var wg sync.WaitGroup
	imgs := make([]image.Image, 8)
	for i := range imgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img, err := r.ResolveImage(path)
			if err != nil {
				t.Errorf("ResolveImage failed: %v", err)
				return
			}
			imgs[i] = img
		}(i)
	}
	wg.Wait()

	again, err := r.ResolveImage(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, img := range imgs {
		if img != again {
			t.Errorf("Call %d returned a different bitmap", i)
		}
	}
	if n := atomic.LoadInt32(&decodes); n != 1 {
		t.Errorf("Expected 1 decode, got %d", n)
	}
	if b := again.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("Expected 4x3, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestResolveImageDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(Options{})

	_, err := r.ResolveImage(path)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if decErr.Ref != path {
		t.Errorf("Expected ref %s, got %s", path, decErr.Ref)
	}
}

func TestIngestBatch(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "slide.png", 8, 6)
	broken := filepath.Join(dir, "broken.jpg")
	os.WriteFile(broken, []byte("garbage"), 0644)
	unsupported := filepath.Join(dir, "notes.txt")
	os.WriteFile(unsupported, []byte("hello"), 0644)
	clip := filepath.Join(dir, "clip.mp4")

	r := newTestResolver(Options{
		Workers: 2,
		Prober:  fakeProber{info: VideoInfo{Width: 1920, Height: 1080, Duration: 6.0, FrameRate: 25}},
	})

	items, errs := r.Ingest(context.Background(), []string{img, broken, clip, unsupported})
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if len(errs) != 2 {
		t.Errorf("Expected 2 ingestion errors, got %d: %v", len(errs), errs)
	}
	for _, err := range errs {
		var ie *IngestionError
		if !errors.As(err, &ie) {
			t.Errorf("Expected IngestionError, got %T", err)
		}
	}

	if items[0].Kind != KindImage || items[0].Width != 8 || items[0].Height != 6 {
		t.Errorf("Unexpected image item: %+v", items[0])
	}
	if items[1].Kind != KindVideo || items[1].Duration != 6.0 {
		t.Errorf("Unexpected video item: %+v", items[1])
	}

	library := r.Items()
	if len(library) != 2 || library[0].ID != items[0].ID || library[1].ID != items[1].ID {
		t.Error("Library order should follow input order")
	}
}

func TestIngestProbeFailureDropsItem(t *testing.T) {
	r := newTestResolver(Options{Prober: fakeProber{err: errors.New("moov atom not found")}})

	items, errs := r.Ingest(context.Background(), []string{"corrupt.mov"})
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(errs))
	}
	var pe *ProbeError
	if !errors.As(errs[0], &pe) {
		t.Errorf("Expected ProbeError inside IngestionError, got %v", errs[0])
	}
}

func TestResolvePlayableVideoReusesHandle(t *testing.T) {
	var opened int
	handles := []*fakeHandle{}
	r := newTestResolver(Options{OpenVideo: func(item *LibraryItem) (VideoHandle, error) {
		opened++
		h := &fakeHandle{}
		handles = append(handles, h)
		return h, nil
	}})

	item := &LibraryItem{ID: "v1", Kind: KindVideo, Ref: "clip.mp4", Duration: 3}
	r.Add(item)

	h1, _ := r.ResolvePlayableVideo(item)
	h2, _ := r.ResolvePlayableVideo(item)
	if h1 != h2 {
		t.Error("Expected the same handle for the same item")
	}
	if opened != 1 {
		t.Errorf("Expected 1 open, got %d", opened)
	}

	h1.SetPlaying(true)
	r.PauseVideos()
	if handles[0].playing {
		t.Error("PauseVideos should pause every handle")
	}

	if err := r.Remove("v1"); err != nil {
		t.Fatal(err)
	}
	if !handles[0].closed {
		t.Error("Remove should close the item's handle")
	}
	if _, ok := r.Item("v1"); ok {
		t.Error("Item should be gone after Remove")
	}
	if err := r.Remove("v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	h := &fakeHandle{}
	r := newTestResolver(Options{OpenVideo: func(item *LibraryItem) (VideoHandle, error) { return h, nil }})
	item := &LibraryItem{ID: "v", Kind: KindVideo, Duration: 1}
	r.Add(item)
	r.ResolvePlayableVideo(item)

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.closed {
		t.Error("Close should release video handles")
	}
	if len(r.Items()) != 0 {
		t.Error("Close should empty the library")
	}
}

func TestPageRef(t *testing.T) {
	ref := PageRef("/tmp/deck.pdf", 3)
	path, page, ok := splitPageRef(ref)
	if !ok || path != "/tmp/deck.pdf" || page != 3 {
		t.Errorf("Unexpected split: %s %d %v", path, page, ok)
	}
	if _, _, ok := splitPageRef("/tmp/a.png"); ok {
		t.Error("Plain path should not be a page ref")
	}
}
