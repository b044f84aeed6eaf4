package geometry

import (
	"image"
	"math"
)

// DefaultPadding is the number of pixels added on every side of a piece's
// bounding box so anti-aliased edges are not cut off.
const DefaultPadding = 2.0

// BoundingBox is an axis-aligned rectangle in absolute pixel space.
type BoundingBox struct {
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MaxX returns the right edge.
func (b BoundingBox) MaxX() float64 { return b.MinX + b.Width }

// MaxY returns the bottom edge.
func (b BoundingBox) MaxY() float64 { return b.MinY + b.Height }

// Empty reports whether the box covers no area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// PixelSize returns the integer dimensions of a raster that fully holds the
// box. Fractional sizes round up.
func (b BoundingBox) PixelSize() (int, int) {
	if b.Empty() {
		return 0, 0
	}
	return int(math.Ceil(b.Width)), int(math.Ceil(b.Height))
}

// Origin returns the integer pixel the box starts at in its frame.
func (b BoundingBox) Origin() image.Point {
	return image.Pt(int(math.Floor(b.MinX)), int(math.Floor(b.MinY)))
}

// Rect returns the source rectangle covered by a raster of PixelSize
// anchored at Origin.
func (b BoundingBox) Rect() image.Rectangle {
	w, h := b.PixelSize()
	o := b.Origin()
	return image.Rect(o.X, o.Y, o.X+w, o.Y+h)
}

// snapEpsilon absorbs float noise so a box edge that sits on a pixel
// boundary is not pushed to the neighbouring pixel.
const snapEpsilon = 1e-6

// Snap grows the box outward to whole pixels and keeps it inside the frame.
// A snapped box has integral origin and size, so the raster, the clip path
// and the re-based polygon all share one pixel grid.
func (b BoundingBox) Snap(frameWidth, frameHeight float64) BoundingBox {
	minX := max(0, math.Floor(b.MinX+snapEpsilon))
	minY := max(0, math.Floor(b.MinY+snapEpsilon))
	maxX := min(frameWidth, math.Ceil(b.MaxX()-snapEpsilon))
	maxY := min(frameHeight, math.Ceil(b.MaxY()-snapEpsilon))
	return BoundingBox{
		MinX:   minX,
		MinY:   minY,
		Width:  max(0, maxX-minX),
		Height: max(0, maxY-minY),
	}
}

// Within reports whether the box lies inside a frame of the given size.
func (b BoundingBox) Within(frameWidth, frameHeight float64) bool {
	return b.MinX >= 0 && b.MinY >= 0 && b.MaxX() <= frameWidth && b.MaxY() <= frameHeight
}

// ComputeBoundingBox converts the relative polygon to absolute coordinates
// of a frameWidth x frameHeight frame, takes the extrema, pads every side by
// padding pixels and clamps the result to the frame.
//
// An empty polygon yields the whole frame.
func ComputeBoundingBox(p Polygon, frameWidth, frameHeight, padding float64) BoundingBox {
	if len(p) == 0 {
		return BoundingBox{Width: frameWidth, Height: frameHeight}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range p {
		abs := RelativeToAbsolute(pt, frameWidth, frameHeight)
		minX = min(minX, abs.X)
		minY = min(minY, abs.Y)
		maxX = max(maxX, abs.X)
		maxY = max(maxY, abs.Y)
	}

	minX = max(0, minX-padding)
	minY = max(0, minY-padding)
	maxX = min(frameWidth, maxX+padding)
	maxY = min(frameHeight, maxY+padding)

	return BoundingBox{
		MinX:   minX,
		MinY:   minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
