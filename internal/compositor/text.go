package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Sizes relative to the surface height.
const (
	captionSizeRatio = 0.045
	titleSizeRatio   = 0.06
	paddingRatio     = 0.04
	lineSpacing      = 1.25
	glowRadius       = 2
)

var (
	captionBox  = color.NRGBA{A: 150}
	textColor   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	glowOpacity = 0.45
)

// TextRenderer draws the caption and title overlays. It caches one face per
// pixel size and is not safe for concurrent use.
type TextRenderer struct {
	font   *opentype.Font
	faces  map[int]font.Face
	accent color.RGBA
}

func NewTextRenderer(accent color.RGBA) (*TextRenderer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &TextRenderer{
		font:   f,
		faces:  make(map[int]font.Face),
		accent: accent,
	}, nil
}

// SetAccent changes the glow color.
func (r *TextRenderer) SetAccent(c color.RGBA) {
	r.accent = c
}

func (r *TextRenderer) face(size int) (font.Face, error) {
	if size < 8 {
		size = 8
	}
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	r.faces[size] = f
	return f, nil
}

// WrapLines greedily packs words into lines no wider than maxWidth. A word
// longer than maxWidth gets a line of its own.
func WrapLines(face font.Face, text string, maxWidth int) []string {
	limit := fixed.I(maxWidth)
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if line == "" || font.MeasureString(face, candidate) <= limit {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// DrawCaption renders text upper-cased in a translucent box anchored to the
// bottom center. Lines stack upward from the anchor.
func (r *TextRenderer) DrawCaption(dst *image.RGBA, text string) error {
	text = strings.ToUpper(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	b := dst.Bounds()
	face, err := r.face(int(float64(b.Dy()) * captionSizeRatio))
	if err != nil {
		return err
	}
	pad := int(float64(b.Dy()) * paddingRatio)
	boxPad := pad / 2
	lineHeight := int(float64(face.Metrics().Height.Ceil()) * lineSpacing)
	ascent := face.Metrics().Ascent.Ceil()
	descent := face.Metrics().Descent.Ceil()

	lines := WrapLines(face, text, b.Dx()-2*pad-2*boxPad)
	if len(lines) == 0 {
		return nil
	}

	widths := make([]int, len(lines))
	maxW := 0
	for i, l := range lines {
		widths[i] = font.MeasureString(face, l).Ceil()
		if widths[i] > maxW {
			maxW = widths[i]
		}
	}

	lastBaseline := b.Max.Y - pad - boxPad - descent
	firstBaseline := lastBaseline - (len(lines)-1)*lineHeight
	box := image.Rect(
		b.Min.X+(b.Dx()-maxW)/2-boxPad,
		firstBaseline-ascent-boxPad,
		b.Min.X+(b.Dx()+maxW)/2+boxPad,
		b.Max.Y-pad,
	)
	draw.Draw(dst, box, image.NewUniform(captionBox), image.Point{}, draw.Over)

	for i, l := range lines {
		x := b.Min.X + (b.Dx()-widths[i])/2
		y := lastBaseline - (len(lines)-1-i)*lineHeight
		r.drawGlowing(dst, face, l, x, y, 1)
	}
	return nil
}

// DrawTitle renders text upper-cased from the top-left corner, lines
// stacking downward, at a fixed opacity.
func (r *TextRenderer) DrawTitle(dst *image.RGBA, text string, opacity float64) error {
	text = strings.ToUpper(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	b := dst.Bounds()
	face, err := r.face(int(float64(b.Dy()) * titleSizeRatio))
	if err != nil {
		return err
	}
	pad := int(float64(b.Dy()) * paddingRatio)
	lineHeight := int(float64(face.Metrics().Height.Ceil()) * lineSpacing)
	ascent := face.Metrics().Ascent.Ceil()

	lines := WrapLines(face, text, b.Dx()-2*pad)
	for i, l := range lines {
		r.drawGlowing(dst, face, l, b.Min.X+pad, b.Min.Y+pad+ascent+i*lineHeight, opacity)
	}
	return nil
}

func (r *TextRenderer) drawGlowing(dst draw.Image, face font.Face, s string, x, y int, opacity float64) {
	glow := color.NRGBA{R: r.accent.R, G: r.accent.G, B: r.accent.B, A: uint8(255 * glowOpacity * opacity)}
	for dx := -glowRadius; dx <= glowRadius; dx += glowRadius {
		for dy := -glowRadius; dy <= glowRadius; dy += glowRadius {
			if dx == 0 && dy == 0 {
				continue
			}
			drawString(dst, face, glow, x+dx, y+dy, s)
		}
	}
	fg := textColor
	fg.A = uint8(255 * opacity)
	drawString(dst, face, fg, x, y, s)
}

func drawString(dst draw.Image, face font.Face, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
