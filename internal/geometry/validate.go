package geometry

import (
	"errors"
	"fmt"
)

var (
	ErrTooFewPoints     = errors.New("polygon needs at least 3 points")
	ErrSelfIntersecting = errors.New("polygon edges intersect")
	ErrOutOfFrame       = errors.New("polygon leaves the image")
)

// GeometryError rejects a polygon at authoring time. Polygons that fail
// validation are never repaired and never persisted.
type GeometryError struct {
	Points int
	Err    error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid polygon (%d points): %v", e.Points, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// ValidateStructure reports whether p has enough points to enclose an area.
func ValidateStructure(p Polygon) bool {
	return len(p) >= 3
}

// HasSelfIntersections tests every edge against every non-adjacent edge.
// Edge i runs from p[i] to p[(i+1)%n]. Edges i and j share a vertex when
// j == i+1, or when i == 0 and j == n-1, so those pairs are skipped.
func HasSelfIntersections(p Polygon) bool {
	n := len(p)
	if n < 4 {
		return false
	}

	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			c, d := p[j], p[(j+1)%n]
			if segmentsIntersect(a, b, c, d) {
				return true
			}
		}
	}
	return false
}

// Validate accepts p only if it passes both the structural check and the
// self-intersection check.
func Validate(p Polygon) error {
	if !ValidateStructure(p) {
		return &GeometryError{Points: len(p), Err: ErrTooFewPoints}
	}
	if HasSelfIntersections(p) {
		return &GeometryError{Points: len(p), Err: ErrSelfIntersecting}
	}
	return nil
}

// ValidateInFrame is Validate plus the requirement that every point is a
// relative coordinate inside its frame.
func ValidateInFrame(p Polygon) error {
	if err := Validate(p); err != nil {
		return err
	}
	if !p.InUnitSquare() {
		return &GeometryError{Points: len(p), Err: ErrOutOfFrame}
	}
	return nil
}

// segmentsIntersect reports whether AB and CD cross. Collinear and touching
// configurations are decided by the strict comparison in ccw.
func segmentsIntersect(a, b, c, d Point) bool {
	return ccw(a, c, d) != ccw(b, c, d) && ccw(a, b, c) != ccw(a, b, d)
}

// ccw reports whether p, q, r turn counter-clockwise.
func ccw(p, q, r Point) bool {
	return (r.Y-p.Y)*(q.X-p.X) > (q.Y-p.Y)*(r.X-p.X)
}
