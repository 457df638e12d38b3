package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Thumbnailer renders bounded JPEG previews.
type Thumbnailer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// NewThumbnailer returns a thumbnailer, falling back to 320x240 at quality 85.
func NewThumbnailer(maxWidth, maxHeight, quality int) *Thumbnailer {
	if maxWidth <= 0 {
		maxWidth = 320
	}
	if maxHeight <= 0 {
		maxHeight = 240
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Thumbnailer{MaxWidth: maxWidth, MaxHeight: maxHeight, Quality: quality}
}

// fitSize scales (w, h) down to fit the bounds, keeping the aspect ratio.
// Images already inside the bounds keep their size.
func (t *Thumbnailer) fitSize(w, h int) (int, int) {
	if w <= t.MaxWidth && h <= t.MaxHeight {
		return w, h
	}
	scale := float64(t.MaxWidth) / float64(w)
	if hs := float64(t.MaxHeight) / float64(h); hs < scale {
		scale = hs
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Render decodes data and returns a JPEG thumbnail. Transparent areas become white.
func (t *Thumbnailer) Render(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	w, h := t.fitSize(bounds.Dx(), bounds.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
