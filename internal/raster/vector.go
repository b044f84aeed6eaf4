package raster

import (
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/inamate/piecegen/internal/geometry"
)

// VectorFactory creates surfaces whose clip paths are rasterized into an
// anti-aliased alpha mask.
type VectorFactory struct {
	MaxPixels int
}

func (f VectorFactory) NewSurface(width, height int) (Surface, error) {
	if err := checkSize(width, height, f.MaxPixels); err != nil {
		return nil, err
	}
	return &vectorSurface{
		dst: image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

type vectorSurface struct {
	dst  *image.RGBA
	mask *image.Alpha // nil until the first clip
}

func (s *vectorSurface) Size() (int, int) {
	b := s.dst.Bounds()
	return b.Dx(), b.Dy()
}

func (s *vectorSurface) ClipToPolygon(points geometry.Polygon) {
	w, h := s.Size()
	clip := image.NewAlpha(image.Rect(0, 0, w, h))

	if len(points) >= 3 {
		z := vector.NewRasterizer(w, h)
		z.MoveTo(float32(points[0].X), float32(points[0].Y))
		for _, p := range points[1:] {
			z.LineTo(float32(p.X), float32(p.Y))
		}
		z.ClosePath()
		z.Draw(clip, clip.Bounds(), image.Opaque, image.Point{})
	}

	if s.mask == nil {
		s.mask = clip
		return
	}
	for i, a := range clip.Pix {
		s.mask.Pix[i] = uint8(uint16(s.mask.Pix[i]) * uint16(a) / 0xff)
	}
}

func (s *vectorSurface) DrawSubImage(src image.Image, srcRect image.Rectangle, dst image.Point) error {
	r, dr := visibleRect(src, srcRect, dst)
	if r.Empty() {
		return nil
	}
	sub := imaging.Crop(src, r)

	if s.mask == nil {
		draw.Draw(s.dst, dr, sub, image.Point{}, draw.Over)
		return nil
	}
	draw.DrawMask(s.dst, dr, sub, image.Point{}, s.mask, dr.Min, draw.Over)
	return nil
}

func (s *vectorSurface) Encode(w io.Writer) error {
	return png.Encode(w, s.dst)
}

func (s *vectorSurface) Close() error { return nil }
