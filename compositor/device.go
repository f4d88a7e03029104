package compositor

import "image/color"

// TextureID is a device texture handle. Zero is invalid.
type TextureID uint64

// ProgramID is a compiled shader program handle. Zero is invalid.
type ProgramID uint64

// TextureUpload describes pixel data handed to the device. Pixels are
// tightly packed non-premultiplied RGBA8, row-major.
type TextureUpload struct {
	Width  int
	Height int
	Pixels []byte

	// GenerateMips requests mip-map generation and trilinear filtering.
	// Only honored when both dimensions are powers of two; the
	// compositor decides this before upload.
	GenerateMips bool

	// Filter selects sampling when mip-maps are off.
	Filter FilterMode

	// Label is an optional debug name.
	Label string
}

// DrawCall is one textured-quad draw with its shader parameters.
type DrawCall struct {
	// Texture is the source texture, or zero for a solid fill.
	Texture TextureID

	// Solid is the fill color used when Texture is zero.
	Solid color.NRGBA

	// Matrix is the row-major 3x3 layer transform (viewport included).
	Matrix [9]float64

	// DstX/DstY/DstW/DstH is the quad in target coordinates before the
	// matrix applies.
	DstX, DstY, DstW, DstH float64

	// Opacity is the effective layer opacity in [0, 1].
	Opacity float64

	// Blend selects the blend-mode uniform of the blend program; the
	// other programs composite source-over.
	Blend uint8

	// BlurRadius parameterizes the blur program (pixels).
	BlurRadius float64

	// Adjust parameterizes the color-adjust program.
	Adjust ColorAdjust
}

// Device is the rendering backend the compositor draws through. A GPU
// implementation wraps gogpu/wgpu; SoftwareDevice is the CPU reference
// used in tests and headless runs. Implementations are not required to
// be safe for concurrent use; the compositor serializes access.
type Device interface {
	// CompileProgram compiles one shader program from WGSL source.
	CompileProgram(kind ProgramKind, wgsl string) (ProgramID, error)

	// CreateTexture uploads pixel data and returns a handle.
	CreateTexture(up TextureUpload) (TextureID, error)

	// DestroyTexture releases a texture. Unknown handles are ignored.
	DestroyTexture(id TextureID)

	// BeginFrame prepares a frame on a target of the given size.
	BeginFrame(width, height int) error

	// Clear fills the target with a color.
	Clear(c color.NRGBA)

	// BindProgram makes the program current for subsequent draws.
	BindProgram(id ProgramID) error

	// Draw issues one draw call with the current program.
	Draw(call DrawCall) error

	// EndFrame submits the frame.
	EndFrame() error

	// Destroy releases every program and texture still alive.
	Destroy()
}
