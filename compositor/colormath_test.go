package compositor

import (
	"math"
	"testing"
)

const colorEps = 1e-9

func TestRGBToHSVKnownValues(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float64
		h, s, v float64
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"white", 1, 1, 1, 0, 0, 1},
		{"red", 1, 0, 0, 0, 1, 1},
		{"green", 0, 1, 0, 120, 1, 1},
		{"blue", 0, 0, 1, 240, 1, 1},
		{"yellow", 1, 1, 0, 60, 1, 1},
		{"cyan", 0, 1, 1, 180, 1, 1},
		{"magenta", 1, 0, 1, 300, 1, 1},
		{"gray", 0.5, 0.5, 0.5, 0, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := RGBToHSV(tt.r, tt.g, tt.b)
			if math.Abs(h-tt.h) > colorEps || math.Abs(s-tt.s) > colorEps || math.Abs(v-tt.v) > colorEps {
				t.Errorf("RGBToHSV = (%g, %g, %g), want (%g, %g, %g)", h, s, v, tt.h, tt.s, tt.v)
			}
		})
	}
}

func TestHSVRoundTrip(t *testing.T) {
	for _, c := range [][3]float64{
		{0.2, 0.4, 0.6},
		{0.9, 0.1, 0.5},
		{0, 0.3, 0.3},
		{1, 1, 1},
		{0.123, 0.456, 0.789},
	} {
		h, s, v := RGBToHSV(c[0], c[1], c[2])
		r, g, b := HSVToRGB(h, s, v)
		if math.Abs(r-c[0]) > 1e-9 || math.Abs(g-c[1]) > 1e-9 || math.Abs(b-c[2]) > 1e-9 {
			t.Errorf("round trip of %v gave (%g, %g, %g)", c, r, g, b)
		}
	}
}

func TestColorAdjustIdentity(t *testing.T) {
	var a ColorAdjust
	if !a.IsIdentity() {
		t.Fatal("zero value should be the identity")
	}
	r, g, b := a.Apply(0.3, 0.6, 0.9)
	if math.Abs(r-0.3) > 1e-9 || math.Abs(g-0.6) > 1e-9 || math.Abs(b-0.9) > 1e-9 {
		t.Errorf("identity Apply changed color: (%g, %g, %g)", r, g, b)
	}
}

func TestColorAdjustBrightness(t *testing.T) {
	a := ColorAdjust{Brightness: 0.25}
	_, _, v0 := RGBToHSV(0.4, 0.4, 0.4)
	r, g, b := a.Apply(0.4, 0.4, 0.4)
	_, _, v1 := RGBToHSV(r, g, b)
	if math.Abs(v1-(v0+0.25)) > 1e-9 {
		t.Errorf("value = %g, want %g", v1, v0+0.25)
	}
}

func TestColorAdjustHueRotation(t *testing.T) {
	// Rotating red by 120 degrees lands on green.
	a := ColorAdjust{HueDegrees: 120}
	r, g, b := a.Apply(1, 0, 0)
	if math.Abs(r) > 1e-9 || math.Abs(g-1) > 1e-9 || math.Abs(b) > 1e-9 {
		t.Errorf("hue rotate = (%g, %g, %g), want (0, 1, 0)", r, g, b)
	}
}

func TestColorAdjustClamps(t *testing.T) {
	a := ColorAdjust{Brightness: 5, Saturation: 5}
	r, g, b := a.Apply(0.5, 0.5, 0.5)
	for _, c := range []float64{r, g, b} {
		if c < 0 || c > 1 {
			t.Fatalf("channel %g outside [0, 1]", c)
		}
	}
}
