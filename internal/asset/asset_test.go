package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/inamate/piecegen/internal/typeid"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "/assets/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestFileStoreUploadOpenDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	name := typeid.NewAssetID() + ".png"

	url, err := s.Upload(ctx, []byte("v1"), "pieces/piece_a/"+name)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "/assets/pieces/piece_a/"+name {
		t.Errorf("url = %q", url)
	}
	if !s.Owns(url) {
		t.Errorf("store does not own its own url %q", url)
	}

	// Overwrite on conflict.
	if _, err := s.Upload(ctx, []byte("v2"), "pieces/piece_a/"+name); err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	rc, err := s.Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "v2" {
		t.Errorf("content = %q, want v2", data)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "pieces", "piece_a", name)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present after delete: %v", err)
	}

	err = s.Delete(ctx, url)
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected not-found StorageError, got %v", err)
	}
}

func TestFileStoreRejectsEscapingPaths(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{"../escape.png", "/abs.png", "a/../../b.png"} {
		if _, err := s.Upload(context.Background(), []byte("x"), p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Upload(%q): expected ErrInvalidPath, got %v", p, err)
		}
	}
	if err := s.Delete(context.Background(), "/assets/../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Delete escaping url: expected ErrInvalidPath, got %v", err)
	}
}

func TestFileStoreDeletesOnlyAssets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, p := range []string{"config.json", "pieces/piece_a/notes.png", "pieces/piece_a/" + typeid.NewPieceID() + ".png"} {
		url, err := s.Upload(ctx, []byte("keep"), p)
		if err != nil {
			t.Fatalf("Upload(%q): %v", p, err)
		}
		err = s.Delete(ctx, url)
		var se *StorageError
		if !errors.As(err, &se) || !errors.Is(err, ErrNotAsset) {
			t.Errorf("Delete(%q): expected ErrNotAsset, got %v", url, err)
		}
		if _, err := os.Stat(filepath.Join(s.Dir(), filepath.FromSlash(p))); err != nil {
			t.Errorf("%s was removed: %v", p, err)
		}
	}
}

func TestFileStoreForeignURL(t *testing.T) {
	s := newStore(t)
	if s.Owns("https://cdn.example.com/x.png") {
		t.Error("store claims a foreign url")
	}
	if err := s.Delete(context.Background(), "https://cdn.example.com/x.png"); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned, got %v", err)
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Upload(ctx, []byte("x"), "a.png"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestServeSetsCacheHeaders(t *testing.T) {
	s := newStore(t)
	url, err := s.Upload(context.Background(), []byte("blob"), "sources/a.png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Serve().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("missing Cache-Control header")
	}
	if rec.Body.String() != "blob" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestUploadHandler(t *testing.T) {
	s := newStore(t)
	h := NewHandler(s, 1<<20)

	var img bytes.Buffer
	png.Encode(&img, image.NewNRGBA(image.Rect(0, 0, 12, 9)))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="board.png"`},
		"Content-Type":        {"image/png"},
	})
	part.Write(img.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Width != 12 || resp.Height != 9 || resp.Type != "png" || resp.Name != "board.png" {
		t.Errorf("unexpected response %+v", resp)
	}
	rc, err := s.Open(context.Background(), resp.URL)
	if err != nil {
		t.Fatalf("uploaded file not readable: %v", err)
	}
	rc.Close()
}

func TestUploadHandlerRejectsNonImage(t *testing.T) {
	h := NewHandler(newStore(t), 1<<20)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "notes.txt")
	part.Write([]byte("hello"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
