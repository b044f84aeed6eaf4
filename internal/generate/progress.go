package generate

import "sync"

// State is the position of a batch in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateUploadingSource  State = "uploading_source"
	StateGeneratingPieces State = "generating_pieces"
	StateUploadingPieces  State = "uploading_pieces"
	StateDone             State = "done"
	StatePartialFailure   State = "partial_failure"
)

// Event reports batch progress. PieceID is set when a single piece finished
// the current state, with Error set if it failed.
type Event struct {
	State     State  `json:"state"`
	PieceID   string `json:"piece_id,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

// ProgressFunc receives batch events. Calls never overlap.
type ProgressFunc func(Event)

type tracker struct {
	mu        sync.Mutex
	fn        ProgressFunc
	state     State
	completed int
	total     int
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn, state: StateIdle}
}

// enter moves to a new state with total units of work.
func (t *tracker) enter(s State, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state, t.completed, t.total = s, 0, total
	t.emit(Event{State: s, Total: total})
}

// step records one finished piece.
func (t *tracker) step(pieceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	ev := Event{State: t.state, PieceID: pieceID, Completed: t.completed, Total: t.total}
	if err != nil {
		ev.Error = err.Error()
	}
	t.emit(ev)
}

func (t *tracker) emit(ev Event) {
	if t.fn != nil {
		t.fn(ev)
	}
}
