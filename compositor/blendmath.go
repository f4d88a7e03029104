package compositor

import "github.com/gogpu/canvas/layer"

// Blend formulas in linear [0, 1] channel space, operating on
// non-premultiplied inputs as read from source textures. This is the CPU
// reference for the blend shader program; the software device uses it
// directly and tests pin the WGSL to it.

// blendChannel applies the per-channel blend function B(src, dst).
func blendChannel(mode layer.BlendMode, s, d float64) float64 {
	switch mode {
	case layer.BlendMultiply:
		return s * d
	case layer.BlendScreen:
		return 1 - (1-s)*(1-d)
	case layer.BlendOverlay:
		// HardLight with swapped operands.
		if d <= 0.5 {
			return 2 * s * d
		}
		return 1 - 2*(1-s)*(1-d)
	default: // BlendNormal
		return s
	}
}

// Composite blends one source pixel over one background pixel and
// returns the result. All channels are non-premultiplied [0, 1].
//
// The blended color mixes into the background by the source coverage:
//
//	out  = mix(bg, blended, srcA*opacity)
//	outA = bgA + srcA*opacity*(1 - bgA)
func Composite(mode layer.BlendMode, opacity float64,
	sr, sg, sb, sa, dr, dg, db, da float64) (r, g, b, a float64) {

	br := blendChannel(mode, sr, dr)
	bg := blendChannel(mode, sg, dg)
	bb := blendChannel(mode, sb, db)

	t := sa * opacity
	r = dr + (br-dr)*t
	g = dg + (bg-dg)*t
	b = db + (bb-db)*t
	a = da + t*(1-da)
	return r, g, b, a
}
