package raster

import (
	"image"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"

	"github.com/inamate/piecegen/internal/geometry"
)

// GGFactory creates surfaces backed by a gogpu/gg software context. Clipping
// follows the canvas model: build a path, Clip, then fill with the image.
type GGFactory struct {
	MaxPixels int
}

func (f GGFactory) NewSurface(width, height int) (Surface, error) {
	if err := checkSize(width, height, f.MaxPixels); err != nil {
		return nil, err
	}
	return &ggSurface{dc: gg.NewContext(width, height), w: width, h: height}, nil
}

type ggSurface struct {
	dc   *gg.Context
	w, h int
}

func (s *ggSurface) Size() (int, int) { return s.w, s.h }

func (s *ggSurface) ClipToPolygon(points geometry.Polygon) {
	s.dc.ClearPath()
	if len(points) < 3 {
		// An empty path clips everything away.
		s.dc.ClipRect(0, 0, 0, 0)
		return
	}
	s.dc.MoveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		s.dc.LineTo(p.X, p.Y)
	}
	s.dc.ClosePath()
	s.dc.Clip()
}

func (s *ggSurface) DrawSubImage(src image.Image, srcRect image.Rectangle, dst image.Point) error {
	r, dr := visibleRect(src, srcRect, dst)
	if r.Empty() {
		return nil
	}

	// Image patterns tile from the surface origin, so stage the pixels on a
	// surface-sized layer first.
	layer := image.NewNRGBA(image.Rect(0, 0, s.w, s.h))
	draw.Draw(layer, dr, imaging.Crop(src, r), image.Point{}, draw.Src)

	pattern := s.dc.CreateImagePattern(gg.ImageBufFromImage(layer), 0, 0, s.w, s.h)
	s.dc.SetFillPattern(pattern)
	s.dc.DrawRectangle(float64(dr.Min.X), float64(dr.Min.Y), float64(dr.Dx()), float64(dr.Dy()))
	return s.dc.Fill()
}

func (s *ggSurface) Encode(w io.Writer) error {
	return s.dc.EncodePNG(w)
}

func (s *ggSurface) Close() error {
	return s.dc.Close()
}
