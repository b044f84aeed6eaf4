// Package generate turns a source image and a list of piece outlines into
// uploaded piece rasters and the puzzle definition that references them.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/inamate/piecegen/internal/asset"
	"github.com/inamate/piecegen/internal/geometry"
	"github.com/inamate/piecegen/internal/imagesrc"
	"github.com/inamate/piecegen/internal/puzzle"
	"github.com/inamate/piecegen/internal/raster"
	"github.com/inamate/piecegen/internal/typeid"
)

// CreateRequest builds a puzzle around a new source image. Piece polygons
// are relative to the full source image.
type CreateRequest struct {
	Source imagesrc.Source
	Pieces []puzzle.Piece
}

// RegenerateRequest rebuilds every piece of an existing puzzle from its
// already uploaded source image. Stale maps piece ids to assets that no
// longer match their piece, including pieces that have since been deleted.
type RegenerateRequest struct {
	Definition puzzle.Definition `json:"definition"`
	Stale      map[string]string `json:"stale,omitempty"`
}

type Service struct {
	assets    asset.Gateway
	loader    *imagesrc.Loader
	extractor *raster.Extractor
	workers   int
}

func NewService(assets asset.Gateway, loader *imagesrc.Loader, extractor *raster.Extractor, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{assets: assets, loader: loader, extractor: extractor, workers: workers}
}

// Create decodes and uploads the source image, then generates every piece.
// A source that fails to decode or upload fails the whole call. Piece
// failures are reported in the Result together with a *PartialFailureError.
func (s *Service) Create(ctx context.Context, req CreateRequest, progress ProgressFunc) (*Result, error) {
	t := newTracker(progress)
	t.enter(StateUploadingSource, 1)

	src, err := s.loader.Load(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("load source image: %w", err)
	}

	sourcePath := "sources/" + typeid.NewAssetID() + imagesrc.Ext(src.Format)
	url, err := s.assets.Upload(ctx, src.Raw, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("upload source image: %w", err)
	}
	slog.Info("source uploaded", "url", url, "width", src.Width, "height", src.Height)

	def := puzzle.Definition{
		ImageURL:    url,
		ImageWidth:  src.Width,
		ImageHeight: src.Height,
		Pieces:      []puzzle.Piece{},
	}

	jobs := make([]*job, len(req.Pieces))
	for i, p := range req.Pieces {
		p = p.Clone()
		if p.ID == "" {
			p.ID = typeid.NewPieceID()
		}
		jobs[i] = &job{piece: p, polygon: p.PolygonPoints}
	}

	b := &batch{Service: s, src: src, tracker: t}
	return b.run(ctx, def, jobs, nil)
}

// Regenerate rebuilds every piece of req.Definition from its source image.
// Materialized pieces are first mapped back onto the full image, which
// requires loading their current raster; a raster that cannot be loaded
// fails that piece only. The old asset of each piece is deleted, without
// waiting, just before its replacement is uploaded. Delete failures are
// logged and otherwise ignored.
func (s *Service) Regenerate(ctx context.Context, req RegenerateRequest, progress ProgressFunc) (*Result, error) {
	t := newTracker(progress)

	src, err := s.loader.Load(ctx, imagesrc.Source{URL: req.Definition.ImageURL})
	if err != nil {
		return nil, fmt.Errorf("load source image: %w", err)
	}
	if w, h := req.Definition.ImageWidth, req.Definition.ImageHeight; (w != 0 || h != 0) && (w != src.Width || h != src.Height) {
		slog.Warn("source dimensions differ from definition",
			"url", req.Definition.ImageURL,
			"definition", fmt.Sprintf("%dx%d", w, h),
			"decoded", fmt.Sprintf("%dx%d", src.Width, src.Height))
	}

	def := req.Definition.Clone()
	def.ImageWidth, def.ImageHeight = src.Width, src.Height

	b := &batch{Service: s, src: src, tracker: t}

	present := make(map[string]bool, len(def.Pieces))
	jobs := make([]*job, len(def.Pieces))
	for i, p := range def.Pieces {
		present[p.ID] = true
		j := &job{piece: p.Clone(), polygon: p.PolygonPoints, regenerate: true}
		if stale, ok := req.Stale[p.ID]; ok && stale != "" {
			j.stale = append(j.stale, stale)
		}
		if p.Materialized() && !contains(j.stale, p.ImageURL) {
			j.stale = append(j.stale, p.ImageURL)
		}
		jobs[i] = j
	}

	// Assets of deleted pieces have nothing to wait for.
	for id, url := range req.Stale {
		if !present[id] && url != "" {
			b.deleteAsync(ctx, id, url)
		}
	}

	return b.run(ctx, def, jobs, req.Stale)
}

func contains(urls []string, url string) bool {
	for _, u := range urls {
		if u == url {
			return true
		}
	}
	return false
}

// job carries one piece through a batch. Only the goroutine working on a
// job writes to it.
type job struct {
	piece      puzzle.Piece
	polygon    geometry.Polygon // relative to the full source image
	regenerate bool
	stale      []string

	extraction *raster.Extraction
	deleted    bool
	url        string
	failure    *PieceFailure
}

func (j *job) fail(stage Stage, err error) {
	j.failure = &PieceFailure{PieceID: j.piece.ID, Stage: stage, Error: err.Error(), err: err}
}

// batch is the shared, read-only context of one generation run.
type batch struct {
	*Service
	src     *imagesrc.Decoded
	tracker *tracker
	deletes sync.WaitGroup
}

func (b *batch) run(ctx context.Context, def puzzle.Definition, jobs []*job, stale map[string]string) (*Result, error) {
	// Deletes run on their own; the batch only waits for them before
	// returning so no goroutine outlives the call.
	defer b.deletes.Wait()

	if len(jobs) == 0 {
		def.Pieces = []puzzle.Piece{}
		b.tracker.enter(StateDone, 0)
		return &Result{Definition: def, Failures: []PieceFailure{}}, nil
	}

	b.extractAll(ctx, jobs)
	b.uploadAll(ctx, jobs)

	res := b.assemble(def, jobs, stale)
	if len(res.Failures) > 0 {
		b.tracker.enter(StatePartialFailure, len(jobs))
		slog.Warn("generation incomplete",
			"requested", len(jobs), "succeeded", res.Succeeded(), "failed", len(res.Failures))
		return res, &PartialFailureError{
			Requested: len(jobs),
			Succeeded: res.Succeeded(),
			Failures:  res.Failures,
		}
	}
	b.tracker.enter(StateDone, len(jobs))
	slog.Info("generation complete", "pieces", len(jobs), "source", def.ImageURL)
	return res, nil
}

func (b *batch) extractAll(ctx context.Context, jobs []*job) {
	b.tracker.enter(StateGeneratingPieces, len(jobs))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, j := range jobs {
		g.Go(func() error {
			b.extract(ctx, j)
			var err error
			if j.failure != nil {
				err = j.failure.err
			}
			b.tracker.step(j.piece.ID, err)
			return nil
		})
	}
	g.Wait()
}

func (b *batch) extract(ctx context.Context, j *job) {
	if j.regenerate && j.piece.Materialized() {
		polygon, err := b.fullFramePolygon(ctx, j.piece)
		if err != nil {
			j.fail(StageDecode, err)
			return
		}
		j.polygon = polygon
	}

	x, err := b.extractor.Extract(b.src.Image, j.polygon, b.src.Width, b.src.Height)
	if err != nil {
		j.fail(StageExtract, err)
		return
	}
	j.extraction = x
}

// fullFramePolygon maps a materialized piece's polygon from its own raster
// back onto the source image. The raster's size is only known by loading it.
func (b *batch) fullFramePolygon(ctx context.Context, p puzzle.Piece) (geometry.Polygon, error) {
	r, err := b.loader.Load(ctx, imagesrc.Source{URL: p.ImageURL})
	if err != nil {
		return nil, fmt.Errorf("load piece raster: %w", err)
	}
	return geometry.Uncrop(p.PolygonPoints,
		float64(r.Width), float64(r.Height),
		p.OriginalX, p.OriginalY,
		float64(b.src.Width), float64(b.src.Height)), nil
}

func (b *batch) uploadAll(ctx context.Context, jobs []*job) {
	pending := 0
	for _, j := range jobs {
		if j.extraction != nil {
			pending++
		}
	}
	b.tracker.enter(StateUploadingPieces, pending)

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, j := range jobs {
		if j.extraction == nil {
			continue
		}
		g.Go(func() error {
			for _, url := range j.stale {
				b.deleteAsync(ctx, j.piece.ID, url)
			}
			j.deleted = len(j.stale) > 0

			path := "pieces/" + j.piece.ID + "/" + typeid.NewAssetID() + ".png"
			url, err := b.assets.Upload(ctx, j.extraction.PNG, path)
			if err != nil {
				j.fail(StageUpload, err)
			} else {
				j.url = url
			}
			b.tracker.step(j.piece.ID, err)
			return nil
		})
	}
	g.Wait()
}

// deleteAsync removes an asset without holding up the caller. The delete
// outlives cancellation of ctx.
func (b *batch) deleteAsync(ctx context.Context, pieceID, url string) {
	ctx = context.WithoutCancel(ctx)
	b.deletes.Add(1)
	go func() {
		defer b.deletes.Done()
		if err := b.assets.Delete(ctx, url); err != nil {
			slog.Warn("delete stale asset", "piece", pieceID, "url", url, "error", err)
			return
		}
		slog.Debug("deleted stale asset", "piece", pieceID, "url", url)
	}()
}

func (b *batch) assemble(def puzzle.Definition, jobs []*job, stale map[string]string) *Result {
	res := &Result{Failures: []PieceFailure{}}
	def.Pieces = make([]puzzle.Piece, len(jobs))

	for i, j := range jobs {
		p := j.piece
		switch {
		case j.failure == nil:
			p.PolygonPoints = j.extraction.Polygon
			p.OriginalX, p.OriginalY = j.extraction.Anchor(b.src.Width, b.src.Height)
			p.ImageURL = j.url
		case j.deleted:
			// The old raster is gone, so the piece falls back to an
			// unmaterialized outline on the full image.
			p.PolygonPoints = j.polygon
			p.OriginalX, p.OriginalY = j.extraction.Anchor(b.src.Width, b.src.Height)
			p.ImageURL = ""
		}
		if j.failure != nil {
			res.Failures = append(res.Failures, *j.failure)
			slog.Warn("piece generation failed",
				"piece", j.failure.PieceID, "stage", j.failure.Stage, "error", j.failure.err)
		}
		def.Pieces[i] = p

		if url, ok := stale[p.ID]; ok && !j.deleted {
			if res.Stale == nil {
				res.Stale = make(map[string]string)
			}
			res.Stale[p.ID] = url
		}
	}

	res.Definition = def
	return res
}
