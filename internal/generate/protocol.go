package generate

import (
	"encoding/json"

	"github.com/inamate/piecegen/internal/puzzle"
)

// Message is the websocket envelope for streamed generation.
type Message struct {
	Type    string          `json:"type"`
	JobID   string          `json:"jobId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

const (
	// Client -> server, one per connection
	TypeCreate     = "generate.create"
	TypeRegenerate = "generate.regenerate"

	// Server -> client
	TypeAccepted = "generate.accepted"
	TypeProgress = "generate.progress"
	TypeResult   = "generate.result"
	TypeError    = "error"
)

// CreatePayload starts a Create from an already reachable image.
type CreatePayload struct {
	ImageURL string         `json:"image_url"`
	Pieces   []puzzle.Piece `json:"pieces"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
