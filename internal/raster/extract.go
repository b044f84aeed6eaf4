package raster

import (
	"bytes"
	"fmt"
	"image"

	"github.com/inamate/piecegen/internal/geometry"
)

// Extraction is one rasterized piece.
type Extraction struct {
	// PNG holds the encoded cutout: transparent outside the polygon.
	PNG []byte
	// Polygon is the piece outline relative to the cutout itself.
	Polygon geometry.Polygon
	// Box is the pre-crop bounding box in source pixels.
	Box    geometry.BoundingBox
	Width  int
	Height int
}

// Anchor returns the cutout's top-left corner relative to the source image.
func (x *Extraction) Anchor(srcWidth, srcHeight int) (float64, float64) {
	return geometry.Anchor(x.Box, float64(srcWidth), float64(srcHeight))
}

// Extractor cuts pieces out of a decoded source image. It keeps no state
// between calls, so one Extractor can serve concurrent extractions that
// share the same read-only source.
type Extractor struct {
	surfaces SurfaceFactory
	padding  float64
}

func NewExtractor(surfaces SurfaceFactory, padding float64) *Extractor {
	return &Extractor{surfaces: surfaces, padding: padding}
}

// Padding is the margin, in source pixels, added around each piece.
func (e *Extractor) Padding() float64 { return e.padding }

// Extract rasterizes polygon, given relative to a srcWidth x srcHeight
// source, into its own cropped image and re-bases the polygon onto it. The
// bounding box is snapped to whole pixels, so the cutout's size equals
// Box.Width x Box.Height exactly.
func (e *Extractor) Extract(src image.Image, polygon geometry.Polygon, srcWidth, srcHeight int) (*Extraction, error) {
	if err := geometry.ValidateInFrame(polygon); err != nil {
		return nil, err
	}

	fw, fh := float64(srcWidth), float64(srcHeight)
	box := geometry.ComputeBoundingBox(polygon, fw, fh, e.padding).Snap(fw, fh)

	w, h := box.PixelSize()
	surface, err := e.surfaces.NewSurface(w, h)
	if err != nil {
		return nil, err
	}
	defer surface.Close()

	local := geometry.Shift(geometry.ToAbsolute(polygon, fw, fh), box)
	surface.ClipToPolygon(local)

	srcRect := box.Rect().Add(src.Bounds().Min)
	if err := surface.DrawSubImage(src, srcRect, image.Point{}); err != nil {
		return nil, fmt.Errorf("draw piece: %w", err)
	}

	var buf bytes.Buffer
	if err := surface.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode piece: %w", err)
	}

	return &Extraction{
		PNG:     buf.Bytes(),
		Polygon: geometry.ToRelative(local, box.Width, box.Height),
		Box:     box,
		Width:   w,
		Height:  h,
	}, nil
}
