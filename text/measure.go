package text

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	gtfont "github.com/go-text/typesetting/font"
	tslang "github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	xlang "golang.org/x/text/language"

	"github.com/gogpu/canvas/layer"
)

// defaultFontSize is used when the content carries no size.
const defaultFontSize = 16

// Measurer sizes text content by shaping it with HarfBuzz. It
// implements the store's TextMeasurer so new text layers get bounds
// matching what the rasterizer will draw.
//
// Measurer is safe for concurrent use. HarfbuzzShaper instances carry
// mutable state and are pooled; go-text faces are created per call.
type Measurer struct {
	reg     *Registry
	shapers sync.Pool
}

// NewMeasurer creates a measurer over the registry.
func NewMeasurer(reg *Registry) *Measurer {
	return &Measurer{
		reg: reg,
		shapers: sync.Pool{
			New: func() any { return &shaping.HarfbuzzShaper{} },
		},
	}
}

// Measure shapes the text line by line and returns the tight box:
// width of the widest line, line height times the line count.
func (m *Measurer) Measure(c layer.TextContent) (float64, float64, error) {
	if strings.TrimSpace(c.Text) == "" {
		return 0, 0, ErrEmptyText
	}
	f, err := m.reg.resolve(c.FontFamily, c.Bold, c.Italic)
	if err != nil {
		return 0, 0, err
	}

	size := c.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	face := gtfont.NewFace(f.shape)
	lang := shapeLanguage(c.Language)
	sh := m.shapers.Get().(*shaping.HarfbuzzShaper)
	defer m.shapers.Put(sh)

	var width, lineHeight float64
	lines := strings.Split(c.Text, "\n")
	for _, line := range lines {
		runes := []rune(line)
		if len(runes) == 0 {
			continue
		}
		out := sh.Shape(shaping.Input{
			Text:      runes,
			RunStart:  0,
			RunEnd:    len(runes),
			Direction: di.DirectionLTR,
			Face:      face,
			Size:      floatToFixed(size),
			Script:    detectScript(runes),
			Language:  lang,
		})
		width = max(width, fixedToFloat(out.Advance))
		// Descent is negative in shaping output.
		lh := fixedToFloat(out.LineBounds.Ascent - out.LineBounds.Descent + out.LineBounds.Gap)
		lineHeight = max(lineHeight, lh)
	}
	if width <= 0 {
		return 0, 0, fmt.Errorf("%w: no glyphs for %q", ErrEmptyText, c.Text)
	}
	if lineHeight <= 0 {
		lineHeight = size * 1.25
	}
	return width, lineHeight * float64(len(lines)), nil
}

// shapeLanguage normalizes a BCP 47 tag for the shaper. Empty or
// unparsable tags fall back to English.
func shapeLanguage(tag string) tslang.Language {
	if tag != "" {
		if t, err := xlang.Parse(tag); err == nil {
			return tslang.NewLanguage(t.String())
		}
	}
	return tslang.NewLanguage("en")
}

// detectScript returns the script of the first non-space rune. Mixed
// script text should be split into runs before shaping; single-run
// detection is enough for layer content.
func detectScript(runes []rune) tslang.Script {
	for _, r := range runes {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return tslang.LookupScript(r)
	}
	return tslang.Latin
}

func floatToFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(v * 64) }

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
