// Package raster cuts polygonal pieces out of a source image.
//
// Drawing goes through the Surface capability so the clipping backend can
// be swapped: the default backend rasterizes the clip path with
// golang.org/x/image/vector, the alternative uses the gogpu/gg software
// renderer.
package raster

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/inamate/piecegen/internal/geometry"
)

// ErrSurfaceUnavailable means a drawing surface could not be created. It is
// fatal for the extraction that needed it and is never retried.
var ErrSurfaceUnavailable = errors.New("raster surface unavailable")

// DefaultMaxPixels caps a single surface at 8192x8192.
const DefaultMaxPixels = 8192 * 8192

// Surface is a transparent raster that drawing can be clipped on.
type Surface interface {
	Size() (int, int)
	// ClipToPolygon restricts later drawing to the interior of points, given
	// in the surface's own pixel coordinates. Clips accumulate by
	// intersection.
	ClipToPolygon(points geometry.Polygon)
	// DrawSubImage copies srcRect of src so that srcRect.Min lands on dst.
	DrawSubImage(src image.Image, srcRect image.Rectangle, dst image.Point) error
	// Encode writes the surface as a lossless image that keeps transparency.
	Encode(w io.Writer) error
	Close() error
}

// SurfaceFactory allocates surfaces.
type SurfaceFactory interface {
	NewSurface(width, height int) (Surface, error)
}

// NewFactory returns the factory registered under backend ("vector" or "gg").
func NewFactory(backend string, maxPixels int) (SurfaceFactory, error) {
	switch backend {
	case "", "vector":
		return VectorFactory{MaxPixels: maxPixels}, nil
	case "gg":
		return GGFactory{MaxPixels: maxPixels}, nil
	default:
		return nil, fmt.Errorf("unknown raster backend %q", backend)
	}
}

func checkSize(width, height, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: empty %dx%d surface", ErrSurfaceUnavailable, width, height)
	}
	if width > maxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrSurfaceUnavailable, width, height, maxPixels)
	}
	return nil
}

// visibleRect clips srcRect to the source bounds and returns the clipped
// rectangle together with the destination rectangle it maps to.
func visibleRect(src image.Image, srcRect image.Rectangle, dst image.Point) (image.Rectangle, image.Rectangle) {
	r := srcRect.Intersect(src.Bounds())
	if r.Empty() {
		return image.Rectangle{}, image.Rectangle{}
	}
	at := dst.Add(r.Min.Sub(srcRect.Min))
	return r, image.Rectangle{Min: at, Max: at.Add(r.Size())}
}
