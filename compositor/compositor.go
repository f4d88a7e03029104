// Package compositor renders layer containers through a fixed set of
// shader programs on a pluggable device backend.
package compositor

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/store"
)

// TextRasterizer renders text content to pixels for upload. Optional;
// without one, text layers draw as solid quads in the text color.
type TextRasterizer interface {
	Rasterize(content *layer.TextContent, width, height int) (*image.NRGBA, error)
}

// FrameStats describes one rendered frame.
type FrameStats struct {
	Layers         int
	Batches        int
	DrawCalls      int
	ProgramBinds   int
	TextureUploads int
	Duration       time.Duration
}

// Compositor draws containers bottom-to-top in paint order. Layers are
// grouped into adjacent batches sharing a (blend mode, program) key so
// each batch binds its program once. Uploaded layer textures live in a
// size-bounded cache invalidated by store events.
//
// Methods are safe for concurrent use; rendering is serialized.
type Compositor struct {
	mu       sync.Mutex
	dev      Device
	settings RenderSettings
	programs map[ProgramKind]ProgramID
	cache    *TextureCache
	images   ImageProvider
	text     TextRasterizer
	logger   *slog.Logger

	// Textures uploaded while the cache is disabled, destroyed at
	// frame end.
	frameTextures []TextureID

	lastStats FrameStats
	closed    bool
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithImageProvider replaces the default image loader.
func WithImageProvider(p ImageProvider) Option {
	return func(c *Compositor) {
		if p != nil {
			c.images = p
		}
	}
}

// WithTextRasterizer sets the rasterizer used for text layers.
func WithTextRasterizer(r TextRasterizer) Option {
	return func(c *Compositor) { c.text = r }
}

// WithLogger sets the logger. Defaults to the package logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a compositor on the given device and compiles the full
// program set up front. A nil device returns ErrContextUnavailable;
// the caller decides whether to fall back to a software device.
func New(dev Device, settings RenderSettings, opts ...Option) (*Compositor, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrContextUnavailable)
	}
	settings = settings.normalized()

	programs, err := compilePrograms(dev)
	if err != nil {
		return nil, err
	}

	kindToID := make(map[ProgramKind]ProgramID, len(programs))
	for kind, id := range programs {
		kindToID[kind] = id
	}

	c := &Compositor{
		dev:      dev,
		settings: settings,
		programs: kindToID,
		logger:   canvas.Logger(),
	}
	if settings.CacheEnabled {
		c.cache = NewTextureCache(settings.CacheSizeMB, dev.DestroyTexture)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.images == nil {
		c.images = NewImageLoader(WithMaxDimension(settings.MaxTextureDim))
	}

	c.logger.Info("compositor initialized",
		"quality", settings.Quality.String(),
		"cache_mb", settings.CacheSizeMB,
		"max_texture_dim", settings.MaxTextureDim)
	return c, nil
}

// RenderFrame renders one full frame of a container snapshot, as
// returned by Store.Container. A layer whose content cannot be
// resolved is skipped with a warning; the frame still completes.
func (c *Compositor) RenderFrame(ctx context.Context, cont *store.Container) (FrameStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return FrameStats{}, ErrClosed
	}

	start := time.Now()
	w, h := cont.Canvas.Width, cont.Canvas.Height

	if err := c.dev.BeginFrame(w, h); err != nil {
		return FrameStats{}, err
	}
	c.dev.Clear(parseHexColor(cont.Canvas.Background))

	view := viewMatrix(cont.View)
	layers := cont.VisibleInOrder()
	batches := BatchLayers(layers)

	var stats FrameStats
	stats.Layers = len(layers)
	stats.Batches = len(batches)

	for _, batch := range batches {
		if err := c.dev.BindProgram(c.programs[batch.Program()]); err != nil {
			return stats, err
		}
		stats.ProgramBinds++

		for _, l := range batch.Layers {
			call, ok, err := c.buildDrawCall(ctx, cont, l, view, &stats)
			if err != nil {
				c.logger.Warn("skipping layer",
					"layer", l.ID, "name", l.Name, "error", err)
				continue
			}
			if !ok {
				continue
			}
			if err := c.dev.Draw(call); err != nil {
				return stats, err
			}
			stats.DrawCalls++
		}
	}

	err := c.dev.EndFrame()
	c.releaseFrameTextures()
	stats.Duration = time.Since(start)
	c.lastStats = stats

	// Dirty accumulates between frames for diagnostics; a completed
	// frame resets it.
	cont.Dirty = layer.BoundingBox{}

	c.logger.Debug("frame rendered",
		"layers", stats.Layers,
		"batches", stats.Batches,
		"draw_calls", stats.DrawCalls,
		"uploads", stats.TextureUploads,
		"duration", stats.Duration)
	return stats, err
}

// buildDrawCall assembles the draw parameters for one layer. ok is
// false for structural layers that produce no draw.
func (c *Compositor) buildDrawCall(ctx context.Context, cont *store.Container, l *layer.Layer, view layer.Matrix, stats *FrameStats) (DrawCall, bool, error) {
	call := DrawCall{
		Matrix:  view.Multiply(l.Transform.Matrix()).Elements9(),
		DstX:    l.Bounds.X,
		DstY:    l.Bounds.Y,
		DstW:    l.Bounds.Width,
		DstH:    l.Bounds.Height,
		Opacity: cont.EffectiveOpacity(l),
		Blend:   uint8(l.BlendMode),
	}
	if f, ok := l.Style.BlurFilter(); ok {
		call.BlurRadius = f.Amount
	}
	call.Adjust = adjustFromStyle(l.Style)

	switch {
	case l.Image != nil:
		tex, err := c.imageTexture(ctx, l, stats)
		if err != nil {
			return DrawCall{}, false, err
		}
		call.Texture = tex
	case l.Text != nil:
		tex, solid, err := c.textTexture(l, stats)
		if err != nil {
			return DrawCall{}, false, err
		}
		call.Texture = tex
		call.Solid = solid
	case l.Kind == layer.KindBackground:
		// Background layers fill their bounds with the canvas color.
		call.Solid = parseHexColor(cont.Canvas.Background)
	default:
		// Group, effect, and mask layers carry no pixels.
		return DrawCall{}, false, nil
	}
	return call, true, nil
}

// imageTexture returns the device texture for an image layer, from the
// cache when possible.
func (c *Compositor) imageTexture(ctx context.Context, l *layer.Layer, stats *FrameStats) (TextureID, error) {
	url := activeImageURL(l.Image)
	hash := imageContentHash(l.Image, url)

	if c.cache != nil {
		if tex, ok := c.cache.Get(l.ID, hash); ok {
			return tex, nil
		}
	}

	img, err := c.images.Load(ctx, url)
	if err != nil {
		return 0, err
	}
	return c.upload(l, img, hash, stats)
}

// textTexture returns the texture for a text layer when a rasterizer is
// configured, or the solid fallback color when not.
func (c *Compositor) textTexture(l *layer.Layer, stats *FrameStats) (TextureID, color.NRGBA, error) {
	if c.text == nil {
		return 0, parseHexColor(l.Text.Color), nil
	}

	hash := textContentHash(l.Text)
	if c.cache != nil {
		if tex, ok := c.cache.Get(l.ID, hash); ok {
			return tex, color.NRGBA{}, nil
		}
	}

	w := max(int(math.Ceil(l.Bounds.Width)), 1)
	h := max(int(math.Ceil(l.Bounds.Height)), 1)
	img, err := c.text.Rasterize(l.Text, w, h)
	if err != nil {
		return 0, color.NRGBA{}, err
	}
	tex, err := c.upload(l, img, hash, stats)
	return tex, color.NRGBA{}, err
}

// upload sends pixels to the device and records them in the cache. Mip
// maps are generated only for power-of-two textures outside draft
// quality.
func (c *Compositor) upload(l *layer.Layer, img *image.NRGBA, hash uint64, stats *FrameStats) (TextureID, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	mips := c.settings.Quality != QualityDraft && isPowerOfTwo(w) && isPowerOfTwo(h)

	tex, err := c.dev.CreateTexture(TextureUpload{
		Width:        w,
		Height:       h,
		Pixels:       img.Pix,
		GenerateMips: mips,
		Filter:       c.settings.Filter,
		Label:        l.Name,
	})
	if err != nil {
		return 0, err
	}
	stats.TextureUploads++

	if c.cache != nil {
		c.cache.Put(l.ID, tex, hash, int64(len(img.Pix)), mips)
	} else {
		c.frameTextures = append(c.frameTextures, tex)
	}
	return tex, nil
}

func (c *Compositor) releaseFrameTextures() {
	for _, tex := range c.frameTextures {
		c.dev.DestroyTexture(tex)
	}
	c.frameTextures = c.frameTextures[:0]
}

// HandleEvent invalidates cached textures in response to store events.
// Wire it to a bus subscription; invalidation is the only cache
// staleness mechanism, the compositor never polls.
func (c *Compositor) HandleEvent(ev store.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cache == nil {
		return
	}

	switch e := ev.(type) {
	case store.LayerUpdated:
		switch {
		case e.Patch.IsZero():
			// Whole-layer restore; everything may have changed.
			c.cache.Invalidate(e.LayerID)
		case e.Patch.Image != nil:
			c.cache.Invalidate(e.LayerID)
			if loader, ok := c.images.(*ImageLoader); ok {
				loader.Invalidate(activeImageURL(e.Patch.Image))
			}
		case e.Patch.Text != nil:
			c.cache.Invalidate(e.LayerID)
		}
	case store.LayerDeleted:
		c.cache.Invalidate(e.LayerID)
	case store.ContainerLoaded:
		c.cache.Clear()
	}
}

// Stats returns the statistics of the last rendered frame.
func (c *Compositor) Stats() FrameStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStats
}

// CacheStats returns texture cache counters. Zero when the cache is
// disabled.
func (c *Compositor) CacheStats() TextureCacheStats {
	if c.cache == nil {
		return TextureCacheStats{}
	}
	return c.cache.Stats()
}

// Cleanup releases every texture and device resource. The compositor
// is unusable afterwards; further calls return ErrClosed.
func (c *Compositor) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	c.releaseFrameTextures()
	c.dev.Destroy()
	c.closed = true
	c.logger.Info("compositor cleaned up")
}

// viewMatrix builds the viewport transform: zoom about the origin,
// then rotation, then pan.
func viewMatrix(v store.Viewport) layer.Matrix {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	m := layer.Translation(v.PanX, v.PanY)
	if v.Rotation != 0 {
		m = m.Multiply(layer.Rotation(v.Rotation * math.Pi / 180))
	}
	if zoom != 1 {
		m = m.Multiply(layer.Scaling(zoom, zoom))
	}
	return m
}

// activeImageURL resolves the displayed version of an image.
func activeImageURL(ic *layer.ImageContent) string {
	if len(ic.VersionURLs) > 0 && ic.SelectedVersion >= 0 && ic.SelectedVersion < len(ic.VersionURLs) {
		return ic.VersionURLs[ic.SelectedVersion]
	}
	return ic.SourceURL
}

// imageContentHash fingerprints the displayed image content.
func imageContentHash(ic *layer.ImageContent, url string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(ic.NaturalWidth)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(ic.NaturalHeight)))
	return h.Sum64()
}

// textContentHash fingerprints rasterized text content.
func textContentHash(tc *layer.TextContent) uint64 {
	h := fnv.New64a()
	for _, s := range []string{
		tc.Text, tc.FontFamily,
		strconv.FormatFloat(tc.FontSize, 'g', -1, 64),
		strconv.FormatBool(tc.Bold), strconv.FormatBool(tc.Italic),
		tc.Color, tc.Language,
	} {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// adjustFromStyle folds non-blur filters into color-adjust parameters.
func adjustFromStyle(s *layer.Style) ColorAdjust {
	var a ColorAdjust
	if s == nil {
		return a
	}
	for _, f := range s.Filters {
		switch f.Kind {
		case layer.FilterBrightness:
			a.Brightness += f.Amount
		case layer.FilterContrast:
			a.Contrast += f.Amount
		case layer.FilterSaturation:
			a.Saturation += f.Amount
		case layer.FilterHueRotate:
			a.HueDegrees += f.Amount
		}
	}
	return a
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// parseHexColor parses #rgb, #rrggbb, and #rrggbbaa. Anything else
// yields opaque white.
func parseHexColor(s string) color.NRGBA {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if len(s) == 0 || s[0] != '#' {
		return white
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return white
		}
		r := uint8(v >> 8 & 0xf)
		g := uint8(v >> 4 & 0xf)
		b := uint8(v & 0xf)
		return color.NRGBA{R: r*16 + r, G: g*16 + g, B: b*16 + b, A: 255}
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return white
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	case 8:
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return white
		}
		return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	default:
		return white
	}
}
