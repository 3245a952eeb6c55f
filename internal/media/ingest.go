package media

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Ingest resolves a batch of source files into library items. A source that
// fails is dropped and reported in the returned errors; the rest of the
// batch continues. Items are registered in input order.
func (r *Resolver) Ingest(ctx context.Context, paths []string) ([]*LibraryItem, []error) {
	results := make([][]*LibraryItem, len(paths))

	var mu sync.Mutex
	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, err := r.ingestOne(gctx, path)
			if err != nil {
				r.logger.Warn().Err(err).Str("path", path).Msg("source dropped")
				mu.Lock()
				errs = append(errs, &IngestionError{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	var added []*LibraryItem
	for _, items := range results {
		for _, item := range items {
			r.Add(item)
			added = append(added, item)
		}
	}
	return added, errs
}

func (r *Resolver) ingestOne(ctx context.Context, path string) ([]*LibraryItem, error) {
	name := filepath.Base(path)

	switch detectSource(path) {
	case sourceImage:
		img, err := r.ResolveImage(path)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		return []*LibraryItem{{
			ID:     uuid.NewString(),
			Kind:   KindImage,
			Ref:    path,
			Name:   name,
			Width:  b.Dx(),
			Height: b.Dy(),
		}}, nil

	case sourceVideo:
		info, err := r.ProbeVideo(ctx, path)
		if err != nil {
			return nil, err
		}
		return []*LibraryItem{{
			ID:        uuid.NewString(),
			Kind:      KindVideo,
			Ref:       path,
			Name:      name,
			Width:     info.Width,
			Height:    info.Height,
			Duration:  info.Duration,
			FrameRate: info.FrameRate,
		}}, nil

	case sourcePDF:
		return r.ingestPDF(path, name)
	}

	return nil, ErrUnsupported
}

// ingestPDF expands a document into one image item per page. Pages are
// rasterized lazily on first draw.
func (r *Resolver) ingestPDF(path, name string) ([]*LibraryItem, error) {
	doc, err := openPDF(path)
	if err != nil {
		return nil, &DecodeError{Ref: path, Err: err}
	}
	defer doc.Close()

	count := doc.PageCount()
	if count == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	items := make([]*LibraryItem, 0, count)
	for i := 0; i < count; i++ {
		w, h, err := doc.PageSize(i)
		if err != nil {
			return nil, &DecodeError{Ref: PageRef(path, i), Err: err}
		}
		items = append(items, &LibraryItem{
			ID:     uuid.NewString(),
			Kind:   KindImage,
			Ref:    PageRef(path, i),
			Name:   fmt.Sprintf("%s p.%d", name, i+1),
			Width:  w,
			Height: h,
		})
	}
	return items, nil
}
