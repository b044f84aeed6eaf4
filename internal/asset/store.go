package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/inamate/piecegen/internal/typeid"
)

var (
	ErrInvalidPath = errors.New("invalid asset path")
	ErrNotOwned    = errors.New("url is not served by this store")
	ErrNotFound    = errors.New("asset not found")
	ErrNotAsset    = errors.New("not a generated asset")
)

// Gateway stores generated blobs and hands back durable URLs.
type Gateway interface {
	// Upload writes data under logicalPath, overwriting any existing blob,
	// and returns the URL it is served from.
	Upload(ctx context.Context, data []byte, logicalPath string) (string, error)
	// Delete removes the blob behind url. Callers treat failures as best-effort.
	Delete(ctx context.Context, url string) error
}

// StorageError reports a failed upload or delete.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("asset %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FileStore is a Gateway backed by a local directory. Files are served
// under baseURL by Serve.
type FileStore struct {
	dir     string // directory to store asset files
	baseURL string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory files are written to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Upload(ctx context.Context, data []byte, logicalPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}

	dst, err := s.resolve(logicalPath)
	if err != nil {
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}

	// Write to a temp file first so readers never see a partial blob and a
	// second upload to the same path simply replaces the first.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", &StorageError{Op: "upload", Path: logicalPath, Err: err}
	}

	return s.URL(logicalPath), nil
}

// Delete removes a blob written by Upload. Only files named after an asset
// id can be deleted, so a stale URL handed in by a client cannot remove
// anything else under the asset directory.
func (s *FileStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "delete", Path: url, Err: err}
	}

	logicalPath, err := s.logicalPath(url)
	if err != nil {
		return &StorageError{Op: "delete", Path: url, Err: err}
	}
	dst, err := s.resolve(logicalPath)
	if err != nil {
		return &StorageError{Op: "delete", Path: url, Err: err}
	}
	name := path.Base(logicalPath)
	if err := typeid.Validate(strings.TrimSuffix(name, path.Ext(name)), typeid.PrefixAsset); err != nil {
		slog.Warn("refusing to delete non-asset file", "url", url, "error", err)
		return &StorageError{Op: "delete", Path: url, Err: ErrNotAsset}
	}
	if err := os.Remove(dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrNotFound
		}
		return &StorageError{Op: "delete", Path: url, Err: err}
	}
	return nil
}

// Open returns the blob behind url if this store serves it.
func (s *FileStore) Open(_ context.Context, url string) (io.ReadCloser, error) {
	logicalPath, err := s.logicalPath(url)
	if err != nil {
		return nil, err
	}
	dst, err := s.resolve(logicalPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dst)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Owns reports whether url points into this store.
func (s *FileStore) Owns(url string) bool {
	_, err := s.logicalPath(url)
	return err == nil
}

// URL returns the public URL of a logical path.
func (s *FileStore) URL(logicalPath string) string {
	return s.baseURL + "/" + path.Clean(logicalPath)
}

// Serve returns an http.Handler that serves stored asset files with caching
// headers. Mount it under the path of baseURL.
func (s *FileStore) Serve() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	prefix := s.baseURL + "/"
	if i := strings.Index(prefix, "://"); i >= 0 {
		// Absolute base URLs are mounted by their path component.
		rest := prefix[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			prefix = rest[j:]
		}
	}
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every generation writes a fresh asset id, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

func (s *FileStore) logicalPath(url string) (string, error) {
	rest, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || rest == "" {
		return "", ErrNotOwned
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest, nil
}

func (s *FileStore) resolve(logicalPath string) (string, error) {
	clean := filepath.FromSlash(path.Clean(logicalPath))
	if !filepath.IsLocal(clean) {
		slog.Warn("rejected asset path", "path", logicalPath)
		return "", ErrInvalidPath
	}
	return filepath.Join(s.dir, clean), nil
}
