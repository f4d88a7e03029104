package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestImageLoaderDataURL(t *testing.T) {
	url := solidPNGDataURL(t, 4, 4, color.NRGBA{B: 255, A: 255})
	l := NewImageLoader()

	img, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Rect.Dx() != 4 || img.Rect.Dy() != 4 {
		t.Errorf("dims = %dx%d, want 4x4", img.Rect.Dx(), img.Rect.Dy())
	}
	if got := img.NRGBAAt(2, 2); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("pixel = %+v, want blue", got)
	}

	if _, err := l.Load(context.Background(), url); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	stats := l.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats = %+v, want one hit one miss", stats)
	}
}

func TestImageLoaderBadInput(t *testing.T) {
	l := NewImageLoader()
	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"data url without comma", "data:image/png;base64"},
		{"data url not base64", "data:image/png,rawpixels"},
		{"data url bad payload", "data:image/png;base64,@@@@"},
		{"data url not an image", "data:text/plain;base64,aGVsbG8="},
		{"missing file", "file:///nonexistent/missing.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Load(context.Background(), tt.url); !errors.Is(err, ErrImageUnavailable) {
				t.Errorf("Load(%q) = %v, want ErrImageUnavailable", tt.url, err)
			}
		})
	}
}

func TestImageLoaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, encodePNG(t, 2, 3, color.NRGBA{G: 255, A: 255}), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := NewImageLoader()
	for _, url := range []string{path, "file://" + path} {
		img, err := l.Load(context.Background(), url)
		if err != nil {
			t.Fatalf("Load(%q): %v", url, err)
		}
		if img.Rect.Dx() != 2 || img.Rect.Dy() != 3 {
			t.Errorf("Load(%q) dims = %dx%d, want 2x3", url, img.Rect.Dx(), img.Rect.Dy())
		}
	}
}

func TestImageLoaderHTTP(t *testing.T) {
	body := encodePNG(t, 4, 4, color.NRGBA{R: 255, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	l := NewImageLoader(WithHTTPClient(srv.Client()))

	img, err := l.Load(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Rect.Dx() != 4 {
		t.Errorf("width = %d, want 4", img.Rect.Dx())
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing.png"); !errors.Is(err, ErrImageUnavailable) {
		t.Errorf("404 Load = %v, want ErrImageUnavailable", err)
	}
}

func TestImageLoaderDownscales(t *testing.T) {
	url := solidPNGDataURL(t, 8, 4, color.NRGBA{R: 255, A: 255})
	l := NewImageLoader(WithMaxDimension(4))

	img, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Rect.Dx() != 4 || img.Rect.Dy() != 2 {
		t.Errorf("dims = %dx%d, want 4x2", img.Rect.Dx(), img.Rect.Dy())
	}
}

func TestImageLoaderInvalidate(t *testing.T) {
	url := solidPNGDataURL(t, 2, 2, color.NRGBA{A: 255})
	l := NewImageLoader()

	if _, err := l.Load(context.Background(), url); err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.Invalidate(url)
	if _, err := l.Load(context.Background(), url); err != nil {
		t.Fatalf("Load after Invalidate: %v", err)
	}
	if stats := l.CacheStats(); stats.Misses != 2 {
		t.Errorf("misses = %d, want 2", stats.Misses)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, maxDim int
		wantW, wantH int
	}{
		{100, 50, 200, 100, 50},
		{100, 50, 0, 100, 50},
		{200, 100, 100, 100, 50},
		{100, 200, 100, 50, 100},
		{4096, 1, 64, 64, 1},
		{1, 4096, 64, 1, 64},
	}
	for _, tt := range tests {
		gotW, gotH := fitWithin(tt.w, tt.h, tt.maxDim)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tt.w, tt.h, tt.maxDim, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}
