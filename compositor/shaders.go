package compositor

import (
	_ "embed"
	"fmt"
)

// Embedded WGSL shader sources for the fixed program set, compiled
// ahead of time at initialization.

//go:embed shaders/texture.wgsl
var textureShaderSource string

//go:embed shaders/blend.wgsl
var blendShaderSource string

//go:embed shaders/blur.wgsl
var blurShaderSource string

//go:embed shaders/coloradjust.wgsl
var colorAdjustShaderSource string

// shaderSource returns the WGSL source for a program kind.
func shaderSource(kind ProgramKind) (string, error) {
	switch kind {
	case ProgramTexture:
		return textureShaderSource, nil
	case ProgramBlend:
		return blendShaderSource, nil
	case ProgramBlur:
		return blurShaderSource, nil
	case ProgramColorAdjust:
		return colorAdjustShaderSource, nil
	default:
		return "", fmt.Errorf("%w: unknown program kind %d", ErrShaderCompileFailed, kind)
	}
}

// compilePrograms compiles the full fixed program set on the device.
// Any failure aborts initialization; the compositor never runs with a
// partial program set.
func compilePrograms(dev Device) (map[ProgramKind]ProgramID, error) {
	programs := make(map[ProgramKind]ProgramID, len(programKinds))
	for _, kind := range programKinds {
		src, err := shaderSource(kind)
		if err != nil {
			return nil, err
		}
		id, err := dev.CompileProgram(kind, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrShaderCompileFailed, kind, err)
		}
		programs[kind] = id
	}
	return programs, nil
}
