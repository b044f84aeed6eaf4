package geometry

import "math"

// Matrix2D is a 2D affine transformation.
// Layout: [a, b, c, d, e, f] representing:
// | a  c  e |
// | b  d  f |
// | 0  0  1 |
type Matrix2D [6]float64

// Identity returns the identity matrix.
func Identity() Matrix2D {
	return Matrix2D{1, 0, 0, 1, 0, 0}
}

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix2D {
	return Matrix2D{1, 0, 0, 1, tx, ty}
}

// Scale returns a scale matrix.
func Scale(sx, sy float64) Matrix2D {
	return Matrix2D{sx, 0, 0, sy, 0, 0}
}

// Multiply returns m * other, which applies other first and then m.
func (m Matrix2D) Multiply(other Matrix2D) Matrix2D {
	return Matrix2D{
		m[0]*other[0] + m[2]*other[1],
		m[1]*other[0] + m[3]*other[1],
		m[0]*other[2] + m[2]*other[3],
		m[1]*other[2] + m[3]*other[3],
		m[0]*other[4] + m[2]*other[5] + m[4],
		m[1]*other[4] + m[3]*other[5] + m[5],
	}
}

// Apply transforms a single point.
func (m Matrix2D) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// ApplyAll transforms every point of p into a new polygon.
func (m Matrix2D) ApplyAll(p Polygon) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = m.Apply(pt)
	}
	return out
}

// Determinant returns the determinant of the linear part.
func (m Matrix2D) Determinant() float64 {
	return m[0]*m[3] - m[1]*m[2]
}

// Invert returns the inverse of m, or Identity if m is singular.
func (m Matrix2D) Invert() Matrix2D {
	det := m.Determinant()
	if det == 0 {
		return Identity()
	}

	invDet := 1.0 / det
	return Matrix2D{
		m[3] * invDet,
		-m[1] * invDet,
		-m[2] * invDet,
		m[0] * invDet,
		(m[2]*m[5] - m[3]*m[4]) * invDet,
		(m[1]*m[4] - m[0]*m[5]) * invDet,
	}
}

// IsIdentity checks if this is the identity matrix (within epsilon).
func (m Matrix2D) IsIdentity() bool {
	const eps = 1e-10
	return math.Abs(m[0]-1) < eps &&
		math.Abs(m[1]) < eps &&
		math.Abs(m[2]) < eps &&
		math.Abs(m[3]-1) < eps &&
		math.Abs(m[4]) < eps &&
		math.Abs(m[5]) < eps
}

// RelativeToAbsolute maps a point relative to a width x height frame into
// that frame's pixel space.
func RelativeToAbsolute(p Point, width, height float64) Point {
	return Point{X: p.X * width, Y: p.Y * height}
}

// AbsoluteToRelative maps a pixel point of a width x height frame back to
// relative space. A zero-sized frame maps everything to the origin.
func AbsoluteToRelative(p Point, width, height float64) Point {
	var out Point
	if width != 0 {
		out.X = p.X / width
	}
	if height != 0 {
		out.Y = p.Y / height
	}
	return out
}

// ToAbsolute converts a whole relative polygon.
func ToAbsolute(p Polygon, width, height float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = RelativeToAbsolute(pt, width, height)
	}
	return out
}

// ToRelative converts a whole absolute polygon.
func ToRelative(p Polygon, width, height float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = AbsoluteToRelative(pt, width, height)
	}
	return out
}

// Shift moves absolute points into the frame of a raster whose origin sits
// at the box's top-left corner.
func Shift(p Polygon, box BoundingBox) Polygon {
	return Translate(-box.MinX, -box.MinY).ApplyAll(p)
}

// Rebase re-expresses a polygon relative to a srcWidth x srcHeight image as
// a polygon relative to the box cropped out of that image.
func Rebase(p Polygon, srcWidth, srcHeight float64, box BoundingBox) Polygon {
	return ToRelative(Shift(ToAbsolute(p, srcWidth, srcHeight), box), box.Width, box.Height)
}

// Anchor returns the top-left corner of box relative to the full source
// image. It is always computed against the original, uncropped dimensions.
func Anchor(box BoundingBox, srcWidth, srcHeight float64) (float64, float64) {
	a := AbsoluteToRelative(Point{X: box.MinX, Y: box.MinY}, srcWidth, srcHeight)
	return a.X, a.Y
}

// CropFrame returns the matrix taking points relative to the source image to
// points relative to a rasterWidth x rasterHeight crop anchored at
// (anchorX, anchorY), itself relative to the source.
func CropFrame(srcWidth, srcHeight, rasterWidth, rasterHeight, anchorX, anchorY float64) Matrix2D {
	toAbs := Scale(srcWidth, srcHeight)
	shift := Translate(-anchorX*srcWidth, -anchorY*srcHeight)
	toCrop := Scale(1/rasterWidth, 1/rasterHeight)
	return toCrop.Multiply(shift).Multiply(toAbs)
}

// Uncrop maps a materialized polygon, relative to its own raster, back to
// the source image frame. It is the inverse of CropFrame. Results are
// clamped to the unit square to absorb rounding.
func Uncrop(p Polygon, rasterWidth, rasterHeight, anchorX, anchorY, srcWidth, srcHeight float64) Polygon {
	if rasterWidth <= 0 || rasterHeight <= 0 || srcWidth <= 0 || srcHeight <= 0 {
		return p.Clone()
	}
	m := CropFrame(srcWidth, srcHeight, rasterWidth, rasterHeight, anchorX, anchorY).Invert()
	out := m.ApplyAll(p)
	for i, pt := range out {
		out[i] = Point{X: clamp01(pt.X), Y: clamp01(pt.Y)}
	}
	return out
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
