package compositor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/canvas/cache"
)

// ImageProvider resolves a source URL to decoded pixels ready for
// texture upload. Implementations must be safe for concurrent use.
type ImageProvider interface {
	Load(ctx context.Context, url string) (*image.NRGBA, error)
}

// maxDecodeBytes caps the response body read for remote sources.
const maxDecodeBytes = 64 * bytesPerMB

// ImageLoader is the default ImageProvider. It handles data URLs,
// file paths, file:// URLs, and http(s) URLs, decodes PNG, JPEG, and
// WebP, downscales oversized sources to the texture dimension cap, and
// keeps decoded images in a sharded LRU keyed by URL.
type ImageLoader struct {
	client *http.Client
	cache  *cache.Sharded[string, *image.NRGBA]
	maxDim int
}

// LoaderOption configures an ImageLoader.
type LoaderOption func(*ImageLoader)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *ImageLoader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithMaxDimension caps the longest edge of decoded images. Larger
// sources are downscaled preserving aspect ratio.
func WithMaxDimension(dim int) LoaderOption {
	return func(l *ImageLoader) {
		if dim > 0 {
			l.maxDim = dim
		}
	}
}

// WithDecodeCacheCapacity sets the per-shard capacity of the decode
// cache.
func WithDecodeCacheCapacity(n int) LoaderOption {
	return func(l *ImageLoader) {
		l.cache = cache.NewSharded[string, *image.NRGBA](n, cache.StringHasher)
	}
}

// NewImageLoader creates a loader with a 30 second HTTP timeout and
// the default texture dimension cap.
func NewImageLoader(opts ...LoaderOption) *ImageLoader {
	l := &ImageLoader{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  cache.NewSharded[string, *image.NRGBA](cache.DefaultCapacity, cache.StringHasher),
		maxDim: DefaultMaxTextureDim,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves and decodes a source URL. Decoded results are cached;
// a failed load is not, so transient errors retry on the next call.
func (l *ImageLoader) Load(ctx context.Context, url string) (*image.NRGBA, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty source url", ErrImageUnavailable)
	}
	return l.cache.GetOrCreate(url, func() (*image.NRGBA, error) {
		data, err := l.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return l.decode(data, url)
	})
}

// Invalidate drops the cached decode for a URL, forcing a refetch.
func (l *ImageLoader) Invalidate(url string) {
	l.cache.Remove(url)
}

// CacheStats exposes decode cache counters.
func (l *ImageLoader) CacheStats() cache.Stats {
	return l.cache.Stats()
}

func (l *ImageLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "data:"):
		return decodeDataURL(url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return l.fetchHTTP(ctx, url)
	case strings.HasPrefix(url, "file://"):
		return readFile(strings.TrimPrefix(url, "file://"))
	default:
		return readFile(url)
	}
}

func (l *ImageLoader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnavailable, url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrImageUnavailable, url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDecodeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnavailable, url, err)
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	return data, nil
}

// decodeDataURL parses a data:image/...;base64,... URL.
func decodeDataURL(url string) ([]byte, error) {
	comma := strings.IndexByte(url, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data url", ErrImageUnavailable)
	}
	meta, payload := url[len("data:"):comma], url[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data url is not base64", ErrImageUnavailable)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: data url decode: %v", ErrImageUnavailable, err)
	}
	return data, nil
}

// decode parses the image bytes and normalizes to NRGBA, downscaling
// when the longest edge exceeds the cap.
func (l *ImageLoader) decode(data []byte, url string) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrImageUnavailable, url, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %s: empty image", ErrImageUnavailable, url)
	}

	dstW, dstH := fitWithin(w, h, l.maxDim)
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	if dstW == w && dstH == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return dst, nil
}

// fitWithin scales (w, h) down so the longest edge is at most maxDim,
// preserving aspect ratio. Dimensions never drop below 1.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
