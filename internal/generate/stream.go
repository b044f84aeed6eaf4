package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/inamate/piecegen/internal/imagesrc"
	"github.com/inamate/piecegen/internal/typeid"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 30 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4 << 20
	sendBuffer = 64
)

// StreamHandler runs one generation per websocket connection and streams its
// progress. The client sends a single generate.create or generate.regenerate
// message; the server answers with progress messages followed by exactly one
// generate.result or error message, then closes.
type StreamHandler struct {
	service *Service
	origins []string
}

// NewStreamHandler accepts connections from the given origins. Entries may
// carry a scheme, which is ignored.
func NewStreamHandler(service *Service, origins []string) *StreamHandler {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, strings.TrimRight(o, "/"))
	}
	return &StreamHandler{service: service, origins: patterns}
}

type session struct {
	conn   *websocket.Conn
	connID string
	jobID  string
	send   chan []byte
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMsgSize)

	s := &session{
		conn:   conn,
		connID: uuid.New().String(),
		jobID:  typeid.NewJobID(),
		send:   make(chan []byte, sendBuffer),
	}

	readCtx, cancel := context.WithTimeout(r.Context(), readWait)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		slog.Debug("read error", "error", err, "conn", s.connID)
		return
	}

	// Nothing else is read from the client; CloseRead keeps control frames
	// flowing and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx)
	}()

	s.handle(ctx, h.service, data)

	close(s.send)
	<-done
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *session) handle(ctx context.Context, svc *Service, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "error", err, "conn", s.connID)
		s.sendError(ctx, errors.New("invalid message"))
		return
	}

	var (
		res *Result
		err error
	)
	switch msg.Type {
	case TypeCreate:
		var p CreatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.sendError(ctx, fmt.Errorf("invalid %s payload", msg.Type))
			return
		}
		if err := checkPieces(p.Pieces, false); err != nil {
			s.sendError(ctx, err)
			return
		}
		s.accepted(ctx, msg.Type)
		req := CreateRequest{Source: imagesrc.Source{URL: p.ImageURL}, Pieces: p.Pieces}
		res, err = svc.Create(ctx, req, s.progress)

	case TypeRegenerate:
		var req RegenerateRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			s.sendError(ctx, fmt.Errorf("invalid %s payload", msg.Type))
			return
		}
		if err := checkPieces(req.Definition.Pieces, true); err != nil {
			s.sendError(ctx, err)
			return
		}
		s.accepted(ctx, msg.Type)
		res, err = svc.Regenerate(ctx, req, s.progress)

	default:
		s.sendError(ctx, fmt.Errorf("unknown message type %q", msg.Type))
		return
	}

	var pf *PartialFailureError
	if err != nil && (res == nil || !errors.As(err, &pf)) {
		slog.Warn("streamed generation failed", "job", s.jobID, "error", err)
		s.sendError(ctx, err)
		return
	}
	s.sendFinal(ctx, TypeResult, newResponse(res))
}

func (s *session) accepted(ctx context.Context, kind string) {
	slog.Info("generation started", "job", s.jobID, "type", kind, "conn", s.connID)
	s.sendFinal(ctx, TypeAccepted, struct{}{})
}

// progress drops events rather than stall the batch on a slow client.
func (s *session) progress(ev Event) {
	data, err := s.encode(TypeProgress, ev)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		slog.Warn("send buffer full, dropping progress", "job", s.jobID)
	}
}

func (s *session) sendError(ctx context.Context, err error) {
	s.sendFinal(ctx, TypeError, ErrorPayload{Error: err.Error()})
}

// sendFinal queues a message that must not be dropped.
func (s *session) sendFinal(ctx context.Context, typ string, payload any) {
	data, err := s.encode(typ, payload)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-ctx.Done():
	}
}

func (s *session) encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal payload", "error", err, "type", typ)
		return nil, err
	}
	return json.Marshal(&Message{Type: typ, JobID: s.jobID, Payload: raw})
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "conn", s.connID)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
