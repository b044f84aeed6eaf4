// Package geometry holds the polygon math behind puzzle pieces: validation,
// bounding boxes and conversions between relative and absolute coordinates.
package geometry

import "math"

// Point is a pair of coordinates. Whether it is relative (0..1 of a frame)
// or absolute (pixels of a frame) depends on where it came from; use the
// conversion functions in this package to move between the two.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Polygon is a closed loop of points; the last point connects to the first.
type Polygon []Point

// Clone returns a copy that shares no memory with p.
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// InUnitSquare reports whether every point lies in [0,1] x [0,1].
// NaN coordinates are never in range.
func (p Polygon) InUnitSquare() bool {
	for _, pt := range p {
		if !(pt.X >= 0 && pt.X <= 1 && pt.Y >= 0 && pt.Y <= 1) {
			return false
		}
	}
	return true
}

// Translate returns p shifted by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// ApproxEqual compares two polygons point by point within eps.
func ApproxEqual(a, b Polygon, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i].X-b[i].X) > eps || math.Abs(a[i].Y-b[i].Y) > eps {
			return false
		}
	}
	return true
}
