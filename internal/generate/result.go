package generate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inamate/piecegen/internal/puzzle"
)

// ErrCountMismatch means fewer pieces were produced than requested.
var ErrCountMismatch = errors.New("generated piece count does not match request")

// Stage names the step a piece failed in.
type Stage string

const (
	StageDecode  Stage = "decode"
	StageExtract Stage = "extract"
	StageUpload  Stage = "upload"
)

// Status summarizes a batch outcome.
type Status string

const (
	StatusDone           Status = "done"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// PieceFailure identifies a piece that could not be generated, so callers can
// retry it selectively.
type PieceFailure struct {
	PieceID string `json:"piece_id"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`

	err error
}

// Cause returns the underlying error. It is nil for failures decoded from
// JSON.
func (f PieceFailure) Cause() error { return f.err }

// Result is the outcome of a generation batch. Definition always holds every
// requested piece; failed pieces keep their previous state. Stale lists
// assets that still need deleting, keyed by piece id.
type Result struct {
	Definition puzzle.Definition `json:"definition"`
	Failures   []PieceFailure    `json:"failures"`
	Stale      map[string]string `json:"stale,omitempty"`
}

// Succeeded is the number of pieces that were generated and uploaded.
func (r *Result) Succeeded() int {
	return len(r.Definition.Pieces) - len(r.Failures)
}

func (r *Result) Status() Status {
	switch {
	case len(r.Failures) == 0:
		return StatusDone
	case r.Succeeded() == 0:
		return StatusFailed
	default:
		return StatusPartialFailure
	}
}

// PartialFailureError is returned alongside a Result when some pieces failed.
// The successful pieces in the Result remain usable.
type PartialFailureError struct {
	Requested int
	Succeeded int
	Failures  []PieceFailure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.PieceID
	}
	return fmt.Sprintf("generated %d of %d pieces (failed: %s)", e.Succeeded, e.Requested, strings.Join(ids, ", "))
}

func (e *PartialFailureError) Unwrap() error { return ErrCountMismatch }
