package compositor

import (
	"image"
	"math"

	"github.com/ivlev/desktopdoc/internal/timeline"
)

// Cover scales a srcW x srcH source to fill dstW x dstH completely, keeping
// its aspect ratio and centering the overflow.
func Cover(srcW, srcH, dstW, dstH float64) (x, y, w, h float64) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, dstW, dstH
	}
	sr := srcW / srcH
	dr := dstW / dstH
	if sr > dr {
		h = dstH
		w = dstH * sr
	} else {
		w = dstW
		h = dstW / sr
	}
	return (dstW - w) / 2, (dstH - h) / 2, w, h
}

// CoverRect is Cover in pixel space, rounded outward so dst stays covered.
func CoverRect(src image.Rectangle, dst image.Rectangle) image.Rectangle {
	x, y, w, h := Cover(float64(src.Dx()), float64(src.Dy()), float64(dst.Dx()), float64(dst.Dy()))
	return image.Rect(
		dst.Min.X+int(math.Floor(x)),
		dst.Min.Y+int(math.Floor(y)),
		dst.Min.X+int(math.Ceil(x+w)),
		dst.Min.Y+int(math.Ceil(y+h)),
	)
}

// Blend is the incoming clip's opacity at local time. A zero window is an
// instant cut.
func Blend(local, window float64) float64 {
	if window <= 0 {
		return 1
	}
	return math.Min(1, local/window)
}

// Fading reports whether a crossfade from the previous entry is in progress.
// The first entry never fades in.
func Fading(a timeline.Active, window float64) bool {
	return a.Index > 0 && window > 0 && a.LocalTime < window
}
