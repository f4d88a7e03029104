package compositor

import (
	"math"
	"testing"

	"github.com/gogpu/canvas/layer"
)

func TestBlendChannel(t *testing.T) {
	tests := []struct {
		name string
		mode layer.BlendMode
		s, d float64
		want float64
	}{
		{"normal passes source", layer.BlendNormal, 0.3, 0.9, 0.3},
		{"multiply", layer.BlendMultiply, 0.5, 0.5, 0.25},
		{"multiply by one", layer.BlendMultiply, 0.7, 1, 0.7},
		{"screen", layer.BlendScreen, 0.5, 0.5, 0.75},
		{"screen with black", layer.BlendScreen, 0.4, 0, 0.4},
		{"overlay dark backdrop", layer.BlendOverlay, 0.5, 0.25, 0.25},
		{"overlay light backdrop", layer.BlendOverlay, 0.5, 0.75, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blendChannel(tt.mode, tt.s, tt.d)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("blendChannel = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestCompositeFullCoverage(t *testing.T) {
	// Opaque source at full opacity in normal mode replaces the
	// backdrop color.
	r, g, b, a := Composite(layer.BlendNormal, 1, 0.2, 0.4, 0.6, 1, 0.9, 0.8, 0.7, 1)
	if math.Abs(r-0.2) > 1e-9 || math.Abs(g-0.4) > 1e-9 || math.Abs(b-0.6) > 1e-9 || math.Abs(a-1) > 1e-9 {
		t.Errorf("Composite = (%g, %g, %g, %g)", r, g, b, a)
	}
}

func TestCompositeZeroOpacityKeepsBackdrop(t *testing.T) {
	r, g, b, a := Composite(layer.BlendMultiply, 0, 1, 1, 1, 1, 0.1, 0.2, 0.3, 0.4)
	if r != 0.1 || g != 0.2 || b != 0.3 || a != 0.4 {
		t.Errorf("Composite = (%g, %g, %g, %g), want backdrop", r, g, b, a)
	}
}

func TestCompositeHalfOpacity(t *testing.T) {
	// out = mix(bg, blended, srcA*opacity) with srcA=1, opacity=0.5.
	r, _, _, a := Composite(layer.BlendNormal, 0.5, 1, 1, 1, 1, 0, 0, 0, 0)
	if math.Abs(r-0.5) > 1e-9 {
		t.Errorf("r = %g, want 0.5", r)
	}
	// outA = bgA + t*(1-bgA) = 0 + 0.5.
	if math.Abs(a-0.5) > 1e-9 {
		t.Errorf("a = %g, want 0.5", a)
	}
}

func TestCompositeAlphaAccumulates(t *testing.T) {
	_, _, _, a := Composite(layer.BlendNormal, 1, 1, 1, 1, 0.5, 0, 0, 0, 0.5)
	want := 0.5 + 0.5*(1-0.5)
	if math.Abs(a-want) > 1e-9 {
		t.Errorf("a = %g, want %g", a, want)
	}
}
