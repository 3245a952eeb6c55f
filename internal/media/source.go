package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PDF pages are rasterized at this density.
const pdfDPI = 150

const pageMarker = "#page="

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff"}
	videoExts = []string{".mp4", ".mov", ".webm", ".mkv", ".m4v", ".avi"}
)

type sourceType int

const (
	sourceUnknown sourceType = iota
	sourceImage
	sourceVideo
	sourcePDF
)

func detectSource(path string) sourceType {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return sourcePDF
	}
	for _, e := range imageExts {
		if ext == e {
			return sourceImage
		}
	}
	for _, e := range videoExts {
		if ext == e {
			return sourceVideo
		}
	}
	return sourceUnknown
}

// IsMediaFile reports whether path has an extension Ingest understands.
func IsMediaFile(path string) bool {
	return detectSource(path) != sourceUnknown
}

// PageRef builds the reference of one PDF page.
func PageRef(path string, index int) string {
	return path + pageMarker + strconv.Itoa(index)
}

func splitPageRef(ref string) (string, int, bool) {
	i := strings.LastIndex(ref, pageMarker)
	if i < 0 {
		return ref, 0, false
	}
	n, err := strconv.Atoi(ref[i+len(pageMarker):])
	if err != nil {
		return ref, 0, false
	}
	return ref[:i], n, true
}

// DecodeFile is the default bitmap decoder: image files through the
// registered decoders, PDF page references through MuPDF.
func DecodeFile(ref string) (image.Image, error) {
	if path, page, ok := splitPageRef(ref); ok {
		doc, err := openPDF(path)
		if err != nil {
			return nil, err
		}
		defer doc.Close()
		return doc.RenderPage(page)
	}

	f, err := os.Open(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

type pdfDocument struct {
	doc  *fitz.Document
	path string
}

func openPDF(path string) (*pdfDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &pdfDocument{doc: doc, path: path}, nil
}

func (p *pdfDocument) PageCount() int {
	return p.doc.NumPage()
}

// PageSize returns the rasterized pixel size of a page.
func (p *pdfDocument) PageSize(index int) (int, int, error) {
	rect, err := p.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	scale := float64(pdfDPI) / 72.0
	return int(float64(rect.Dx()) * scale), int(float64(rect.Dy()) * scale), nil
}

func (p *pdfDocument) RenderPage(index int) (image.Image, error) {
	if index < 0 || index >= p.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", index)
	}
	return p.doc.ImageDPI(index, pdfDPI)
}

func (p *pdfDocument) Close() error {
	return p.doc.Close()
}
