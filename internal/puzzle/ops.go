package puzzle

import (
	"errors"
	"fmt"

	"github.com/inamate/piecegen/internal/geometry"
)

var ErrUnknownEdit = errors.New("unknown edit")

// EditOp is the JSON form of an Edit, as written in an edit script:
//
//	[{"op": "reshape", "id": "piece_...", "polygon": [{"x": 0.1, "y": 0.1}, ...]},
//	 {"op": "delete", "id": "piece_..."}]
type EditOp struct {
	Op      string           `json:"op"`
	ID      string           `json:"id,omitempty"`
	Name    string           `json:"name,omitempty"`
	Polygon geometry.Polygon `json:"polygon,omitempty"`
	DX      float64          `json:"dx,omitempty"`
	DY      float64          `json:"dy,omitempty"`
}

// Edit converts the op into the edit it names.
func (o EditOp) Edit() (Edit, error) {
	switch o.Op {
	case "add":
		return AddPiece{ID: o.ID, Name: o.Name, Polygon: o.Polygon}, nil
	case "rename":
		return RenamePiece{ID: o.ID, Name: o.Name}, nil
	case "reshape":
		return ReshapePiece{ID: o.ID, Polygon: o.Polygon}, nil
	case "move":
		return MovePiece{ID: o.ID, DX: o.DX, DY: o.DY}, nil
	case "delete":
		return DeletePiece{ID: o.ID}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEdit, o.Op)
	}
}

// ApplyAll applies ops in order. It stops at the first failing op and
// returns the original state with an error naming the op.
func ApplyAll(s State, ops []EditOp) (State, error) {
	next := s
	for i, op := range ops {
		e, err := op.Edit()
		if err != nil {
			return s, fmt.Errorf("edit %d: %w", i, err)
		}
		if next, err = Apply(next, e); err != nil {
			return s, fmt.Errorf("edit %d (%s %s): %w", i, op.Op, op.ID, err)
		}
	}
	return next, nil
}
