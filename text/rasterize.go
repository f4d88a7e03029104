package text

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/canvas/layer"
)

// Rasterizer renders text content to NRGBA pixels for texture upload.
// It satisfies the compositor's TextRasterizer interface.
//
// Rasterizer is safe for concurrent use; opentype faces are not, so
// each call creates its own.
type Rasterizer struct {
	reg *Registry
	mu  sync.Mutex
}

// NewRasterizer creates a rasterizer over the registry.
func NewRasterizer(reg *Registry) *Rasterizer {
	return &Rasterizer{reg: reg}
}

// Rasterize draws the text into a transparent width x height image,
// line by line from the top, in the content color.
func (r *Rasterizer) Rasterize(c *layer.TextContent, width, height int) (*image.NRGBA, error) {
	if c == nil || strings.TrimSpace(c.Text) == "" {
		return nil, ErrEmptyText
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrEmptyText, width, height)
	}
	f, err := r.reg.resolve(c.FontFamily, c.Bold, c.Italic)
	if err != nil {
		return nil, err
	}

	size := c.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	face, err := opentype.NewFace(f.raster, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: xfont.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: face: %v", ErrFontParse, err)
	}
	defer face.Close()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := &xfont.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor(c.Color)),
		Face: face,
	}

	metrics := face.Metrics()
	y := metrics.Ascent
	for _, line := range strings.Split(c.Text, "\n") {
		if y.Ceil() > height+metrics.Descent.Ceil() {
			break
		}
		drawer.Dot = fixed.Point26_6{X: 0, Y: y}
		drawer.DrawString(line)
		y += metrics.Height
	}
	return img, nil
}

// textColor parses #rgb, #rrggbb, and #rrggbbaa. Anything else yields
// opaque black.
func textColor(s string) color.NRGBA {
	black := color.NRGBA{A: 255}
	if len(s) == 0 || s[0] != '#' {
		return black
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return black
		}
		r := uint8(v >> 8 & 0xf)
		g := uint8(v >> 4 & 0xf)
		b := uint8(v & 0xf)
		return color.NRGBA{R: r*16 + r, G: g*16 + g, B: b*16 + b, A: 255}
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return black
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	case 8:
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return black
		}
		return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	default:
		return black
	}
}
