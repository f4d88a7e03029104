package text

import (
	"errors"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/canvas/compositor"
	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/store"
)

var (
	_ store.TextMeasurer        = (*Measurer)(nil)
	_ compositor.TextRasterizer = (*Rasterizer)(nil)
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register("Go", false, false, goregular.TTF); err != nil {
		t.Fatalf("Register regular: %v", err)
	}
	if err := reg.Register("Go", true, false, gobold.TTF); err != nil {
		t.Fatalf("Register bold: %v", err)
	}
	return reg
}

func TestRegistryRejectsGarbage(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("Bad", false, false, []byte("not a font")); !errors.Is(err, ErrFontParse) {
		t.Fatalf("Register = %v, want ErrFontParse", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
}

func TestMeasurerNoFonts(t *testing.T) {
	m := NewMeasurer(NewRegistry())
	_, _, err := m.Measure(layer.TextContent{Text: "hello", FontSize: 16})
	if !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("Measure = %v, want ErrFontNotFound", err)
	}
}

func TestMeasurerEmptyText(t *testing.T) {
	m := NewMeasurer(testRegistry(t))
	for _, s := range []string{"", "   ", "\n\t"} {
		if _, _, err := m.Measure(layer.TextContent{Text: s}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Measure(%q) = %v, want ErrEmptyText", s, err)
		}
	}
}

func TestMeasurerBasic(t *testing.T) {
	m := NewMeasurer(testRegistry(t))

	w, h, err := m.Measure(layer.TextContent{Text: "Hello", FontFamily: "Go", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if w <= 0 || h < 16 {
		t.Errorf("Measure = (%g, %g), want positive width and height >= size", w, h)
	}

	w2, _, err := m.Measure(layer.TextContent{Text: "Hello, wider world", FontFamily: "Go", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if w2 <= w {
		t.Errorf("longer text width %g not greater than %g", w2, w)
	}
}

func TestMeasurerMultiline(t *testing.T) {
	m := NewMeasurer(testRegistry(t))

	_, h1, err := m.Measure(layer.TextContent{Text: "one", FontFamily: "Go", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	_, h2, err := m.Measure(layer.TextContent{Text: "one\ntwo", FontFamily: "Go", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if h2 != 2*h1 {
		t.Errorf("two-line height = %g, want %g", h2, 2*h1)
	}
}

func TestMeasurerScalesWithSize(t *testing.T) {
	m := NewMeasurer(testRegistry(t))

	w16, _, err := m.Measure(layer.TextContent{Text: "scale", FontFamily: "Go", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	w32, _, err := m.Measure(layer.TextContent{Text: "scale", FontFamily: "Go", FontSize: 32})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if w32 <= w16 {
		t.Errorf("32pt width %g not greater than 16pt width %g", w32, w16)
	}
}

func TestMeasurerFallsBackForUnknownFamily(t *testing.T) {
	m := NewMeasurer(testRegistry(t))
	w, _, err := m.Measure(layer.TextContent{Text: "x", FontFamily: "No Such Family", FontSize: 16})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if w <= 0 {
		t.Errorf("width = %g, want > 0", w)
	}
}

func TestRasterizeDrawsPixels(t *testing.T) {
	r := NewRasterizer(testRegistry(t))

	img, err := r.Rasterize(&layer.TextContent{
		Text: "Hi", FontFamily: "Go", FontSize: 16, Color: "#ff0000",
	}, 64, 24)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if img.Rect.Dx() != 64 || img.Rect.Dy() != 24 {
		t.Fatalf("dims = %dx%d, want 64x24", img.Rect.Dx(), img.Rect.Dy())
	}

	var covered int
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i+3] == 0 {
			continue
		}
		covered++
		if img.Pix[i] == 0 {
			t.Fatal("covered pixel has no red component")
		}
	}
	if covered == 0 {
		t.Error("no pixels drawn")
	}
	if covered == 64*24 {
		t.Error("whole target covered, background should stay transparent")
	}
}

func TestRasterizeErrors(t *testing.T) {
	r := NewRasterizer(testRegistry(t))

	if _, err := r.Rasterize(nil, 10, 10); !errors.Is(err, ErrEmptyText) {
		t.Errorf("nil content = %v, want ErrEmptyText", err)
	}
	if _, err := r.Rasterize(&layer.TextContent{Text: " "}, 10, 10); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text = %v, want ErrEmptyText", err)
	}
	if _, err := r.Rasterize(&layer.TextContent{Text: "x"}, 0, 10); !errors.Is(err, ErrEmptyText) {
		t.Errorf("zero width = %v, want error", err)
	}

	empty := NewRasterizer(NewRegistry())
	if _, err := empty.Rasterize(&layer.TextContent{Text: "x"}, 10, 10); !errors.Is(err, ErrFontNotFound) {
		t.Errorf("no fonts = %v, want ErrFontNotFound", err)
	}
}

func TestShapeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "en"},
		{"en-US", "en-US"},
		{"EN", "en"},
		{"ja", "ja"},
		{"not a tag!", "en"},
	}
	for _, tt := range tests {
		if got := string(shapeLanguage(tt.in)); got != tt.want {
			t.Errorf("shapeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextColor(t *testing.T) {
	if c := textColor("#00ff00"); c.G != 255 || c.A != 255 {
		t.Errorf("textColor(#00ff00) = %+v", c)
	}
	if c := textColor("nope"); c.A != 255 || c.R != 0 {
		t.Errorf("fallback color = %+v, want opaque black", c)
	}
}
