// Package puzzle defines the jigsaw puzzle definition exchanged with clients
// and the edits that may be applied to it before generation.
package puzzle

import "github.com/inamate/piecegen/internal/geometry"

// Definition is the puzzle as stored and rendered by clients. ImageWidth and
// ImageHeight are the dimensions of the original, uncropped source image.
type Definition struct {
	ImageURL    string  `json:"image_url"`
	ImageWidth  int     `json:"image_width"`
	ImageHeight int     `json:"image_height"`
	Pieces      []Piece `json:"pieces"`
}

// Piece is one jigsaw piece.
//
// While ImageURL is empty, PolygonPoints are relative to the full source
// image. Once a raster has been uploaded, PolygonPoints are relative to that
// raster instead. OriginalX and OriginalY are always relative to the full
// source image.
type Piece struct {
	ID            string           `json:"id"`
	Name          string           `json:"name,omitempty"`
	PolygonPoints geometry.Polygon `json:"polygon_points"`
	OriginalX     float64          `json:"original_x"`
	OriginalY     float64          `json:"original_y"`
	ImageURL      string           `json:"image_url"`
}

// Materialized reports whether the piece has a generated raster.
func (p Piece) Materialized() bool {
	return p.ImageURL != ""
}

// Clone returns a deep copy of the piece.
func (p Piece) Clone() Piece {
	p.PolygonPoints = p.PolygonPoints.Clone()
	return p
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := d
	out.Pieces = make([]Piece, len(d.Pieces))
	for i, p := range d.Pieces {
		out.Pieces[i] = p.Clone()
	}
	return out
}

// Piece returns the piece with the given id.
func (d Definition) Piece(id string) (Piece, bool) {
	for _, p := range d.Pieces {
		if p.ID == id {
			return p, true
		}
	}
	return Piece{}, false
}

// Materialized reports whether every piece has a raster.
func (d Definition) Materialized() bool {
	for _, p := range d.Pieces {
		if !p.Materialized() {
			return false
		}
	}
	return true
}
