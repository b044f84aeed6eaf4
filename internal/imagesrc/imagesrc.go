// Package imagesrc loads and decodes source and piece images from raw bytes
// or URLs.
package imagesrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultMaxBytes = 50 << 20 // 50MB

var (
	ErrEmptySource = errors.New("no image url or data given")
	ErrTooLarge    = errors.New("image exceeds size limit")
)

// Source names an image either by URL or by its raw encoded bytes. Data
// wins when both are set.
type Source struct {
	URL  string
	Data []byte
}

func (s Source) String() string {
	if len(s.Data) > 0 {
		return fmt.Sprintf("<%d bytes>", len(s.Data))
	}
	return s.URL
}

// Decoded is a raster ready to be sampled, plus the bytes it came from.
type Decoded struct {
	Image  image.Image
	Width  int
	Height int
	Format string
	Raw    []byte
}

// DecodeError means the image could not be fetched or decoded.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Opener resolves URLs that point into local storage without going through
// the network.
type Opener interface {
	Owns(url string) bool
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Loader fetches and decodes images.
type Loader struct {
	client   *http.Client
	local    Opener
	maxBytes int64
}

// NewLoader creates a loader. local may be nil; client defaults to
// http.DefaultClient.
func NewLoader(client *http.Client, local Opener, maxBytes int64) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Loader{client: client, local: local, maxBytes: maxBytes}
}

// Load fetches src if needed and decodes it.
func (l *Loader) Load(ctx context.Context, src Source) (*Decoded, error) {
	if len(src.Data) > 0 {
		return Decode(src.Data)
	}
	if src.URL == "" {
		return nil, &DecodeError{Source: "<empty>", Err: ErrEmptySource}
	}

	data, err := l.fetch(ctx, src.URL)
	if err != nil {
		return nil, &DecodeError{Source: src.URL, Err: err}
	}
	dec, err := Decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Source = src.URL
		}
		return nil, err
	}
	return dec, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	var rc io.ReadCloser
	if l.local != nil && l.local.Owns(url) {
		f, err := l.local.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		rc = f
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		rc = resp.Body
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Decode decodes raw image bytes, applying EXIF orientation so the reported
// dimensions match what a browser displays.
func Decode(data []byte) (*Decoded, error) {
	source := fmt.Sprintf("<%d bytes>", len(data))
	if len(data) == 0 {
		return nil, &DecodeError{Source: source, Err: ErrEmptySource}
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}

	b := img.Bounds()
	return &Decoded{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		Raw:    data,
	}, nil
}

// Ext returns the file extension conventionally used for a decoder format
// name as reported by image.DecodeConfig.
func Ext(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp", "bmp", "tiff":
		return "." + format
	default:
		return ".bin"
	}
}
