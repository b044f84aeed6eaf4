package puzzle

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/inamate/piecegen/internal/geometry"
	"github.com/inamate/piecegen/internal/typeid"
)

var (
	ErrNoImage           = errors.New("puzzle has no source image")
	ErrPieceNotFound     = errors.New("piece not found")
	ErrDuplicatePiece    = errors.New("piece id already exists")
	ErrPieceMaterialized = errors.New("piece already has a generated raster")
	ErrOutOfFrame        = geometry.ErrOutOfFrame
)

// State is the editable form of a puzzle. Stale maps piece ids to rasters
// that no longer match their piece (or whose piece was deleted) and must be
// cleaned up on the next regeneration.
//
// States are values: Apply never modifies the state it is given.
type State struct {
	Definition Definition
	Stale      map[string]string
}

// NewState wraps a definition for editing.
func NewState(def Definition) State {
	return State{Definition: def.Clone()}
}

func (s State) clone() State {
	return State{Definition: s.Definition.Clone(), Stale: maps.Clone(s.Stale)}
}

// Edit is a single change to a puzzle.
type Edit interface {
	apply(s *State) error
}

// Apply returns the state with e applied. On error the original state is
// returned unchanged.
func Apply(s State, e Edit) (State, error) {
	next := s.clone()
	if err := e.apply(&next); err != nil {
		return s, err
	}
	return next, nil
}

// NeedsGeneration reports whether any piece lacks a raster or any stale
// raster is waiting to be deleted.
func (s State) NeedsGeneration() bool {
	return len(s.Stale) > 0 || !s.Definition.Materialized()
}

// StaleURLs lists the stale raster URLs in a stable order.
func (s State) StaleURLs() []string {
	urls := slices.Collect(maps.Values(s.Stale))
	slices.Sort(urls)
	return urls
}

// Committed returns the state after a generation produced def. stale holds
// the entries that generation did not get to clean up.
func (s State) Committed(def Definition, stale map[string]string) State {
	out := State{Definition: def.Clone()}
	if len(stale) > 0 {
		out.Stale = maps.Clone(stale)
	}
	return out
}

func (s *State) index(id string) (int, error) {
	for i, p := range s.Definition.Pieces {
		if p.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrPieceNotFound, id)
}

func (s *State) markStale(p Piece) {
	if !p.Materialized() {
		return
	}
	if s.Stale == nil {
		s.Stale = make(map[string]string)
	}
	s.Stale[p.ID] = p.ImageURL
}

// checkPolygon validates a polygon relative to the full source image.
func checkPolygon(p geometry.Polygon) error {
	return geometry.ValidateInFrame(p)
}

func (s *State) anchor(p geometry.Polygon) (float64, float64, error) {
	w, h := float64(s.Definition.ImageWidth), float64(s.Definition.ImageHeight)
	if w <= 0 || h <= 0 {
		return 0, 0, ErrNoImage
	}
	box := geometry.ComputeBoundingBox(p, w, h, geometry.DefaultPadding).Snap(w, h)
	x, y := geometry.Anchor(box, w, h)
	return x, y, nil
}

// AddPiece finalizes a new piece outline, relative to the full image.
type AddPiece struct {
	ID      string
	Name    string
	Polygon geometry.Polygon
}

func (e AddPiece) apply(s *State) error {
	if err := checkPolygon(e.Polygon); err != nil {
		return err
	}
	id := e.ID
	if id == "" {
		id = typeid.NewPieceID()
	}
	if _, err := s.index(id); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicatePiece, id)
	}
	x, y, err := s.anchor(e.Polygon)
	if err != nil {
		return err
	}
	s.Definition.Pieces = append(s.Definition.Pieces, Piece{
		ID:            id,
		Name:          e.Name,
		PolygonPoints: e.Polygon.Clone(),
		OriginalX:     x,
		OriginalY:     y,
	})
	return nil
}

// RenamePiece changes a piece's display name. The raster stays valid.
type RenamePiece struct {
	ID   string
	Name string
}

func (e RenamePiece) apply(s *State) error {
	i, err := s.index(e.ID)
	if err != nil {
		return err
	}
	s.Definition.Pieces[i].Name = e.Name
	return nil
}

// ReshapePiece replaces a piece's outline with a new polygon relative to the
// full image. A materialized piece loses its raster, which becomes stale.
type ReshapePiece struct {
	ID      string
	Polygon geometry.Polygon
}

func (e ReshapePiece) apply(s *State) error {
	i, err := s.index(e.ID)
	if err != nil {
		return err
	}
	if err := checkPolygon(e.Polygon); err != nil {
		return err
	}
	x, y, err := s.anchor(e.Polygon)
	if err != nil {
		return err
	}
	p := &s.Definition.Pieces[i]
	s.markStale(*p)
	p.PolygonPoints = e.Polygon.Clone()
	p.OriginalX, p.OriginalY = x, y
	p.ImageURL = ""
	return nil
}

// MovePiece translates an unmaterialized piece by a relative offset.
type MovePiece struct {
	ID     string
	DX, DY float64
}

func (e MovePiece) apply(s *State) error {
	i, err := s.index(e.ID)
	if err != nil {
		return err
	}
	p := &s.Definition.Pieces[i]
	if p.Materialized() {
		return fmt.Errorf("%w: %s", ErrPieceMaterialized, e.ID)
	}
	moved := p.PolygonPoints.Translate(e.DX, e.DY)
	if !moved.InUnitSquare() {
		return ErrOutOfFrame
	}
	x, y, err := s.anchor(moved)
	if err != nil {
		return err
	}
	p.PolygonPoints = moved
	p.OriginalX, p.OriginalY = x, y
	return nil
}

// DeletePiece removes a piece. Its raster, if any, becomes stale.
type DeletePiece struct {
	ID string
}

func (e DeletePiece) apply(s *State) error {
	i, err := s.index(e.ID)
	if err != nil {
		return err
	}
	s.markStale(s.Definition.Pieces[i])
	s.Definition.Pieces = slices.Delete(s.Definition.Pieces, i, i+1)
	return nil
}
