package compositor

import "math"

// RGB/HSV conversion and HSV-space color adjustment. This is the CPU
// reference for the coloradjust shader program; the WGSL source encodes
// the same formulas, so results must match bit-for-bit within float32
// tolerance. Channels are in [0, 1]; hue is in degrees [0, 360).

// RGBToHSV converts an RGB color to HSV using the standard six-way hue
// derivation.
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	v = maxC
	if maxC > 0 {
		s = delta / maxC
	}

	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default: // maxC == b
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// HSVToRGB converts an HSV color back to RGB.
func HSVToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	hp := math.Mod(h, 360) / 60
	if hp < 0 {
		hp += 6
	}
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := v - c
	return r + m, g + m, b + m
}

// ColorAdjust holds the parameters of the HSV color-adjustment program.
// Brightness, Contrast, and Saturation are signed offsets in [-1, 1];
// HueDegrees rotates hue. The zero value is the identity.
type ColorAdjust struct {
	Brightness float64
	Contrast   float64
	Saturation float64
	HueDegrees float64
}

// IsIdentity returns true if the adjustment changes nothing.
func (a ColorAdjust) IsIdentity() bool { return a == ColorAdjust{} }

// Apply adjusts one RGB color. Brightness and contrast operate on the
// value channel, saturation and hue on their respective channels, all in
// HSV space, then the result converts back to RGB clamped to [0, 1].
func (a ColorAdjust) Apply(r, g, b float64) (float64, float64, float64) {
	h, s, v := RGBToHSV(r, g, b)

	v += a.Brightness
	if a.Contrast != 0 {
		v = (v-0.5)*(1+a.Contrast) + 0.5
	}
	s += a.Saturation
	h += a.HueDegrees

	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return HSVToRGB(h, clamp01(s), clamp01(v))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
