// Command piecegen cuts jigsaw pieces out of an image from the command line
// and writes them into a local asset directory.
//
//	piecegen -pieces pieces.json -out ./assets photo.jpg
//	piecegen -regenerate puzzle.json -edits edits.json -out ./assets
//
// With -regenerate, the edit script is applied first and pieces are only
// re-cut when an edit invalidated a raster, unless -force is given.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/inamate/piecegen/internal/asset"
	"github.com/inamate/piecegen/internal/generate"
	"github.com/inamate/piecegen/internal/geometry"
	"github.com/inamate/piecegen/internal/imagesrc"
	"github.com/inamate/piecegen/internal/logging"
	"github.com/inamate/piecegen/internal/puzzle"
	"github.com/inamate/piecegen/internal/raster"
)

var (
	flagPieces     = flag.String("pieces", "", "JSON file with the piece list")
	flagRegenerate = flag.String("regenerate", "", "JSON file with an existing puzzle definition to regenerate")
	flagOut        = flag.String("out", "./assets", "Asset output directory")
	flagBaseURL    = flag.String("base-url", "/assets", "URL prefix written into the definition")
	flagEdits      = flag.String("edits", "", "JSON edit script applied before regenerating")
	flagForce      = flag.Bool("force", false, "Regenerate even when every piece is up to date")
	flagJSON       = flag.String("json", "", "Write the definition to this file instead of stdout")
	flagBackend    = flag.String("backend", "vector", "Raster backend (vector or gg)")
	flagPadding    = flag.Float64("padding", geometry.DefaultPadding, "Padding around each piece in pixels")
	flagParallel   = flag.Int("j", 4, "Number of parallel workers")
	flagVerbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger, _, err := logging.New(os.Stderr, logging.Options{Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *flagRegenerate == "" && flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s -pieces <pieces.json> [options] <image path or URL>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -regenerate <puzzle.json> [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := run(ctx)
	var pf *generate.PartialFailureError
	if err != nil && !errors.As(err, &pf) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if werr := writeResult(res); werr != nil {
		fmt.Fprintf(os.Stderr, "Error writing definition: %v\n", werr)
		os.Exit(1)
	}
	if pf != nil {
		for _, f := range pf.Failures {
			fmt.Fprintf(os.Stderr, "  %s failed at %s: %s\n", f.PieceID, f.Stage, f.Error)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
}

func run(ctx context.Context) (*generate.Result, error) {
	store, err := asset.NewFileStore(*flagOut, *flagBaseURL)
	if err != nil {
		return nil, err
	}
	surfaces, err := raster.NewFactory(*flagBackend, raster.DefaultMaxPixels)
	if err != nil {
		return nil, err
	}
	loader := imagesrc.NewLoader(&http.Client{Timeout: time.Minute}, store, 0)
	svc := generate.NewService(store, loader, raster.NewExtractor(surfaces, *flagPadding), *flagParallel)

	progress := func(ev generate.Event) {
		if ev.PieceID == "" {
			slog.Info("stage", "state", ev.State, "total", ev.Total)
			return
		}
		slog.Debug("piece", "state", ev.State, "piece", ev.PieceID,
			"done", fmt.Sprintf("%d/%d", ev.Completed, ev.Total), "error", ev.Error)
	}

	if *flagRegenerate != "" {
		return regenerate(ctx, svc, progress)
	}

	var pieces []puzzle.Piece
	if *flagPieces != "" {
		if err := readJSON(*flagPieces, &pieces); err != nil {
			return nil, err
		}
	}

	src := imagesrc.Source{URL: flag.Arg(0)}
	if !strings.Contains(src.URL, "://") {
		data, err := os.ReadFile(src.URL)
		if err != nil {
			return nil, err
		}
		src = imagesrc.Source{Data: data}
	}
	return svc.Create(ctx, generate.CreateRequest{Source: src, Pieces: pieces}, progress)
}

// regenerate applies the edit script to the stored definition and re-cuts
// its pieces, deleting the rasters the edits made stale.
func regenerate(ctx context.Context, svc *generate.Service, progress generate.ProgressFunc) (*generate.Result, error) {
	var def puzzle.Definition
	if err := readJSON(*flagRegenerate, &def); err != nil {
		return nil, err
	}
	state := puzzle.NewState(def)
	if *flagEdits != "" {
		var ops []puzzle.EditOp
		if err := readJSON(*flagEdits, &ops); err != nil {
			return nil, err
		}
		var err error
		if state, err = puzzle.ApplyAll(state, ops); err != nil {
			return nil, err
		}
		slog.Info("applied edits", "count", len(ops), "stale", len(state.Stale))
	}

	if !state.NeedsGeneration() && !*flagForce {
		slog.Info("puzzle is up to date, nothing to regenerate")
		return &generate.Result{Definition: state.Definition}, nil
	}

	res, err := svc.Regenerate(ctx, generate.RegenerateRequest{Definition: state.Definition, Stale: state.Stale}, progress)
	if res != nil {
		state = state.Committed(res.Definition, res.Stale)
		if urls := state.StaleURLs(); len(urls) > 0 {
			slog.Warn("stale assets could not be deleted", "urls", urls)
		}
	}
	return res, err
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeResult(res *generate.Result) error {
	data, err := json.MarshalIndent(res.Definition, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if *flagJSON == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*flagJSON, data, 0644)
}
