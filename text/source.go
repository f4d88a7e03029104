// Package text sizes and rasterizes text layer content. Shaping runs
// through go-text/typesetting's HarfBuzz port; rasterization uses the
// x/image opentype rasterizer. Both operate on the same registered font
// data.
package text

import (
	"bytes"
	"fmt"
	"sync"

	gtfont "github.com/go-text/typesetting/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// fontKey identifies a family variant.
type fontKey struct {
	family string
	bold   bool
	italic bool
}

// parsedFont holds the two parsed views of one font file. The go-text
// Font is read-only and safe for concurrent use; the sfnt.Font is used
// through short-lived opentype faces created per call.
type parsedFont struct {
	shape  *gtfont.Font
	raster *sfnt.Font
}

// Registry maps font families to parsed fonts. The first registered
// font doubles as the fallback for unknown families, so a single
// Register call is enough for a working setup.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	fonts    map[fontKey]*parsedFont
	fallback *parsedFont
}

// NewRegistry creates an empty font registry.
func NewRegistry() *Registry {
	return &Registry{fonts: make(map[fontKey]*parsedFont)}
}

// Register parses TTF or OTF data and stores it under the family
// variant. The data is parsed once per engine; both parses must
// succeed.
func (r *Registry) Register(family string, bold, italic bool, data []byte) error {
	shaped, err := gtfont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFontParse, family, err)
	}
	rasterFont, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFontParse, family, err)
	}

	pf := &parsedFont{shape: shaped.Font, raster: rasterFont}

	r.mu.Lock()
	r.fonts[fontKey{family, bold, italic}] = pf
	if r.fallback == nil {
		r.fallback = pf
	}
	r.mu.Unlock()
	return nil
}

// resolve finds the closest registered variant: exact match, then the
// regular cut of the family, then the fallback.
func (r *Registry) resolve(family string, bold, italic bool) (*parsedFont, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.fonts[fontKey{family, bold, italic}]; ok {
		return f, nil
	}
	if f, ok := r.fonts[fontKey{family: family}]; ok {
		return f, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrFontNotFound, family)
}

// Len reports the number of registered variants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fonts)
}
