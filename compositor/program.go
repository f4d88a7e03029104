package compositor

import "github.com/gogpu/canvas/layer"

// ProgramKind identifies one of the fixed shader programs compiled ahead
// of time at initialization.
type ProgramKind uint8

// Program kind constants.
const (
	// ProgramTexture is the basic textured-quad program.
	ProgramTexture ProgramKind = iota

	// ProgramBlend composites with a non-normal blend mode, selected by
	// a blend-mode uniform.
	ProgramBlend

	// ProgramBlur is the separable Gaussian blur program.
	ProgramBlur

	// ProgramColorAdjust is the HSV-space brightness/contrast/
	// saturation/hue program.
	ProgramColorAdjust
)

// programKinds lists every program, in compile order.
var programKinds = [...]ProgramKind{ProgramTexture, ProgramBlend, ProgramBlur, ProgramColorAdjust}

// String returns the program name as used in batch keys and logs.
func (k ProgramKind) String() string {
	switch k {
	case ProgramTexture:
		return "texture"
	case ProgramBlend:
		return "blend"
	case ProgramBlur:
		return "blur"
	case ProgramColorAdjust:
		return "coloradjust"
	default:
		return "unknown"
	}
}

// NeedsSpecialProgram reports whether the layer cannot use the basic
// textured-quad program. It is a pure function of layer state:
// filters, a mask, or a non-normal blend mode all disqualify the basic
// program.
func NeedsSpecialProgram(l *layer.Layer) bool {
	return l.Style.HasFilters() || l.HasMask() || l.BlendMode != layer.BlendNormal
}

// SelectProgram picks the shader program for a layer. Blur filters pick
// the blur program, any other filter picks color-adjust, a non-normal
// blend mode with no filter picks the blend program, otherwise the basic
// textured-quad program.
func SelectProgram(l *layer.Layer) ProgramKind {
	if l.Style.HasFilters() {
		if _, ok := l.Style.BlurFilter(); ok {
			return ProgramBlur
		}
		return ProgramColorAdjust
	}
	if l.BlendMode != layer.BlendNormal {
		return ProgramBlend
	}
	return ProgramTexture
}
