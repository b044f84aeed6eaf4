package imagesrc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type memOpener struct {
	prefix string
	files  map[string][]byte
}

func (m *memOpener) Owns(url string) bool { return strings.HasPrefix(url, m.prefix) }

func (m *memOpener) Open(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := m.files[url]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestDecode(t *testing.T) {
	dec, err := Decode(encodePNG(t, 40, 30))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Width != 40 || dec.Height != 30 {
		t.Errorf("size = %dx%d, want 40x30", dec.Width, dec.Height)
	}
	if dec.Format != "png" {
		t.Errorf("format = %q, want png", dec.Format)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestLoadFromData(t *testing.T) {
	l := NewLoader(nil, nil, 0)
	dec, err := l.Load(context.Background(), Source{Data: encodePNG(t, 8, 4)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dec.Width != 8 || dec.Height != 4 {
		t.Errorf("size = %dx%d, want 8x4", dec.Width, dec.Height)
	}
}

func TestLoadEmptySource(t *testing.T) {
	_, err := NewLoader(nil, nil, 0).Load(context.Background(), Source{})
	if !errors.Is(err, ErrEmptySource) {
		t.Errorf("expected ErrEmptySource, got %v", err)
	}
}

func TestLoadFromHTTP(t *testing.T) {
	data := encodePNG(t, 16, 12)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/source.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), nil, 0)
	dec, err := l.Load(context.Background(), Source{URL: srv.URL + "/source.png"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dec.Width != 16 || dec.Height != 12 {
		t.Errorf("size = %dx%d, want 16x12", dec.Width, dec.Height)
	}

	_, err = l.Load(context.Background(), Source{URL: srv.URL + "/missing.png"})
	var de *DecodeError
	if !errors.As(err, &de) || de.Source != srv.URL+"/missing.png" {
		t.Errorf("expected DecodeError naming the url, got %v", err)
	}
}

func TestLoadRespectsSizeLimit(t *testing.T) {
	data := encodePNG(t, 64, 64)
	local := &memOpener{prefix: "/assets/", files: map[string][]byte{"/assets/big.png": data}}
	l := NewLoader(nil, local, int64(len(data)-1))

	_, err := l.Load(context.Background(), Source{URL: "/assets/big.png"})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestLoadPrefersLocalStore(t *testing.T) {
	local := &memOpener{prefix: "/assets/", files: map[string][]byte{"/assets/a.png": encodePNG(t, 5, 7)}}
	l := NewLoader(nil, local, 0)

	dec, err := l.Load(context.Background(), Source{URL: "/assets/a.png"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dec.Width != 5 || dec.Height != 7 {
		t.Errorf("size = %dx%d, want 5x7", dec.Width, dec.Height)
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{"jpeg": ".jpg", "png": ".png", "webp": ".webp", "weird": ".bin"}
	for format, want := range tests {
		if got := Ext(format); got != want {
			t.Errorf("Ext(%q) = %q, want %q", format, got, want)
		}
	}
}
