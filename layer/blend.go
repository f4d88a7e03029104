package layer

// BlendMode is the per-layer compositing function.
type BlendMode uint8

// Blend mode constants. BlendNormal is plain source-over; the others are
// the separable modes from the W3C Compositing and Blending spec that the
// compositor's blend program implements.
const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
)

// String returns a human-readable name for the blend mode.
func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "normal"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// ParseBlendMode converts a serialized name to a BlendMode.
// Unknown names map to BlendNormal.
func ParseBlendMode(s string) BlendMode {
	switch s {
	case "multiply":
		return BlendMultiply
	case "screen":
		return BlendScreen
	case "overlay":
		return BlendOverlay
	default:
		return BlendNormal
	}
}
