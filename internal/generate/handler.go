package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/inamate/piecegen/internal/asset"
	"github.com/inamate/piecegen/internal/geometry"
	"github.com/inamate/piecegen/internal/imagesrc"
	"github.com/inamate/piecegen/internal/puzzle"
	"github.com/inamate/piecegen/internal/raster"
)

type Handler struct {
	service       *Service
	maxUploadSize int64
}

func NewHandler(service *Service, maxUploadSize int64) *Handler {
	return &Handler{service: service, maxUploadSize: maxUploadSize}
}

// Response is the body of every generation endpoint.
type Response struct {
	Definition puzzle.Definition `json:"definition"`
	Status     Status            `json:"status"`
	Failures   []PieceFailure    `json:"failures"`
	Stale      map[string]string `json:"stale,omitempty"`
}

func newResponse(res *Result) Response {
	return Response{
		Definition: res.Definition,
		Status:     res.Status(),
		Failures:   res.Failures,
		Stale:      res.Stale,
	}
}

type validateRequest struct {
	Points geometry.Polygon `json:"points"`
	Width  float64          `json:"width,omitempty"`
	Height float64          `json:"height,omitempty"`
}

type validateResponse struct {
	Valid bool                  `json:"valid"`
	Error string                `json:"error,omitempty"`
	BBox  *geometry.BoundingBox `json:"bbox,omitempty"`
}

// ValidatePolygon handles POST /polygons/validate. With a frame size it
// also returns the padded bounding box the piece would be cut with.
func (h *Handler) ValidatePolygon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := geometry.ValidateInFrame(req.Points); err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Error: err.Error()})
		return
	}

	resp := validateResponse{Valid: true}
	if req.Width > 0 && req.Height > 0 {
		box := geometry.ComputeBoundingBox(req.Points, req.Width, req.Height, h.service.extractor.Padding()).Snap(req.Width, req.Height)
		resp.BBox = &box
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /puzzles: a multipart form with the source image in
// "image" (or its URL in "image_url") and a JSON array of pieces in "pieces".
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	var req CreateRequest
	if raw := r.FormValue("pieces"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Pieces); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pieces"})
			return
		}
	}

	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read image"})
			return
		}
		req.Source.Data = data
	case errors.Is(err, http.ErrMissingFile):
		req.Source.URL = r.FormValue("image_url")
		if req.Source.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image or image_url is required"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image field"})
		return
	}

	if err := checkPieces(req.Pieces, false); err != nil {
		handleServiceError(w, err)
		return
	}

	res, err := h.service.Create(r.Context(), req, nil)
	writeResult(w, res, err)
}

// Regenerate handles POST /puzzles/regenerate with a RegenerateRequest body.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Definition.ImageURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "definition.image_url is required"})
		return
	}
	if err := checkPieces(req.Definition.Pieces, true); err != nil {
		handleServiceError(w, err)
		return
	}

	res, err := h.service.Regenerate(r.Context(), req, nil)
	writeResult(w, res, err)
}

// checkPieces rejects invalid outlines before any work is done. Materialized
// polygons are relative to their own raster and only checked structurally
// when allowMaterialized is set.
func checkPieces(pieces []puzzle.Piece, allowMaterialized bool) error {
	seen := make(map[string]bool, len(pieces))
	for _, p := range pieces {
		if p.ID != "" {
			if seen[p.ID] {
				return fmt.Errorf("%w: %s", puzzle.ErrDuplicatePiece, p.ID)
			}
			seen[p.ID] = true
		}
		var err error
		if allowMaterialized && p.Materialized() {
			err = geometry.Validate(p.PolygonPoints)
		} else {
			err = geometry.ValidateInFrame(p.PolygonPoints)
		}
		if err != nil {
			return fmt.Errorf("piece %s: %w", p.ID, err)
		}
	}
	return nil
}

func writeResult(w http.ResponseWriter, res *Result, err error) {
	var pf *PartialFailureError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newResponse(res))
	case errors.As(err, &pf) && res != nil:
		writeJSON(w, http.StatusMultiStatus, newResponse(res))
	default:
		handleServiceError(w, err)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var (
		geomErr    *geometry.GeometryError
		decodeErr  *imagesrc.DecodeError
		storageErr *asset.StorageError
	)
	switch {
	case errors.As(err, &geomErr),
		errors.Is(err, puzzle.ErrOutOfFrame),
		errors.Is(err, puzzle.ErrDuplicatePiece):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &decodeErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, raster.ErrSurfaceUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &storageErr):
		slog.Error("asset storage failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "asset storage failed"})
	default:
		slog.Error("service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
