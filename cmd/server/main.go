package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/inamate/piecegen/internal/asset"
	"github.com/inamate/piecegen/internal/config"
	"github.com/inamate/piecegen/internal/generate"
	"github.com/inamate/piecegen/internal/imagesrc"
	"github.com/inamate/piecegen/internal/logging"
	mw "github.com/inamate/piecegen/internal/middleware"
	"github.com/inamate/piecegen/internal/raster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:      cfg.Level(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		slog.Error("set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	store, err := asset.NewFileStore(cfg.AssetDir, cfg.AssetBaseURL)
	if err != nil {
		slog.Error("open asset store", "error", err)
		os.Exit(1)
	}

	surfaces, err := raster.NewFactory(cfg.RasterBackend, cfg.MaxSurfacePixels)
	if err != nil {
		slog.Error("raster backend", "error", err)
		os.Exit(1)
	}

	loader := imagesrc.NewLoader(&http.Client{Timeout: cfg.FetchTimeout}, store, cfg.MaxUploadBytes())
	extractor := raster.NewExtractor(surfaces, cfg.PiecePadding)
	generator := generate.NewService(store, loader, extractor, cfg.Workers)

	assetHandler := asset.NewHandler(store, cfg.MaxUploadBytes())
	generateHandler := generate.NewHandler(generator, cfg.MaxUploadBytes())
	streamHandler := generate.NewStreamHandler(generator, cfg.Origins())

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Source images and generated pieces
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(store.Serve()).Methods("GET")

	r.HandleFunc("/polygons/validate", generateHandler.ValidatePolygon).Methods("POST", "OPTIONS")
	r.HandleFunc("/puzzles", generateHandler.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("/puzzles/regenerate", generateHandler.Regenerate).Methods("POST", "OPTIONS")

	// Streamed generation with progress
	r.Handle("/ws/puzzles", streamHandler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting",
		"addr", addr,
		"assets", store.Dir(),
		"backend", cfg.RasterBackend,
		"workers", cfg.Workers)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
