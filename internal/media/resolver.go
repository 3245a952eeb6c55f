package media

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ImageDecoder turns a source reference into a bitmap.
type ImageDecoder func(ref string) (image.Image, error)

type Options struct {
	Logger    zerolog.Logger
	Workers   int
	Decode    ImageDecoder
	Prober    Prober
	OpenVideo VideoOpener
}

// Resolver owns the library and every decoded or loaded resource for the
// session. Close must be called once at session end.
type Resolver struct {
	logger  zerolog.Logger
	workers int
	decode  ImageDecoder
	prober  Prober
	open    VideoOpener

	group singleflight.Group

	mu     sync.Mutex
	items  map[string]*LibraryItem
	order  []string
	images map[string]image.Image
	videos map[string]VideoHandle
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		logger:  opts.Logger,
		workers: opts.Workers,
		decode:  opts.Decode,
		prober:  opts.Prober,
		open:    opts.OpenVideo,
		items:   make(map[string]*LibraryItem),
		images:  make(map[string]image.Image),
		videos:  make(map[string]VideoHandle),
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.decode == nil {
		r.decode = DecodeFile
	}
	if r.prober == nil {
		r.prober = FFprobe{}
	}
	if r.open == nil {
		r.open = NewFFmpegOpener(opts.Logger)
	}
	return r
}

// ResolveImage returns the cached bitmap for ref, decoding it at most once
// even under concurrent callers.
func (r *Resolver) ResolveImage(ref string) (image.Image, error) {
	r.mu.Lock()
	img, ok := r.images[ref]
	r.mu.Unlock()
	if ok {
		return img, nil
	}

	v, err, _ := r.group.Do(ref, func() (interface{}, error) {
		r.mu.Lock()
		cached, ok := r.images[ref]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}

		img, err := r.decode(ref)
		if err != nil {
			return nil, &DecodeError{Ref: ref, Err: err}
		}

		r.mu.Lock()
		r.images[ref] = img
		r.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// ProbeVideo performs one metadata-only load of ref.
func (r *Resolver) ProbeVideo(ctx context.Context, ref string) (VideoInfo, error) {
	info, err := r.prober.Probe(ctx, ref)
	if err != nil {
		return VideoInfo{}, &ProbeError{Ref: ref, Err: err}
	}
	return info, nil
}

// ResolvePlayableVideo returns the single reusable handle for item, creating
// it on first use.
func (r *Resolver) ResolvePlayableVideo(item *LibraryItem) (VideoHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.videos[item.ID]; ok {
		return h, nil
	}
	h, err := r.open(item)
	if err != nil {
		return nil, err
	}
	r.videos[item.ID] = h
	return h, nil
}

// Add registers an item in the library.
func (r *Resolver) Add(item *LibraryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		r.order = append(r.order, item.ID)
	}
	r.items[item.ID] = item
}

// Item looks up a library item by id.
func (r *Resolver) Item(id string) (*LibraryItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	return item, ok
}

// Items lists the library in ingestion order.
func (r *Resolver) Items() []*LibraryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*LibraryItem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Remove drops an item and releases its resources.
func (r *Resolver) Remove(id string) error {
	r.mu.Lock()
	item, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.items, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	h := r.videos[id]
	delete(r.videos, id)

	shared := false
	for _, other := range r.items {
		if other.Ref == item.Ref {
			shared = true
			break
		}
	}
	if !shared {
		delete(r.images, item.Ref)
	}
	r.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}

// PauseVideos stops every handle's clock.
func (r *Resolver) PauseVideos() {
	r.mu.Lock()
	handles := make([]VideoHandle, 0, len(r.videos))
	for _, h := range r.videos {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.SetPlaying(false)
	}
}

// Close releases every cached resource. The library itself is emptied.
func (r *Resolver) Close() error {
	r.mu.Lock()
	handles := r.videos
	r.videos = make(map[string]VideoHandle)
	r.images = make(map[string]image.Image)
	r.items = make(map[string]*LibraryItem)
	r.order = nil
	r.mu.Unlock()

	var firstErr error
	for id, h := range handles {
		if err := h.Close(); err != nil {
			r.logger.Warn().Err(err).Str("item", id).Msg("video handle close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
