package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/canvas/layer"
)

// SoftwareDevice is the CPU reference implementation of Device. It
// rasterizes draw calls with the same blend and color math the WGSL
// programs encode, so GPU output can be validated against it. Used in
// tests and for headless rendering; not safe for concurrent use.
type SoftwareDevice struct {
	programs  map[ProgramID]ProgramKind
	textures  map[TextureID]*image.NRGBA
	nextProg  ProgramID
	nextTex   TextureID
	target    *image.NRGBA
	current   ProgramKind
	bound     bool
	inFrame   bool
	destroyed bool
}

// NewSoftwareDevice creates an empty software device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{
		programs: make(map[ProgramID]ProgramKind),
		textures: make(map[TextureID]*image.NRGBA),
	}
}

// CompileProgram records the program kind. WGSL source is accepted but
// not parsed; the device executes the equivalent CPU math.
func (d *SoftwareDevice) CompileProgram(kind ProgramKind, wgsl string) (ProgramID, error) {
	if d.destroyed {
		return 0, ErrClosed
	}
	if wgsl == "" {
		return 0, fmt.Errorf("%w: empty source for %s", ErrShaderCompileFailed, kind)
	}
	d.nextProg++
	d.programs[d.nextProg] = kind
	return d.nextProg, nil
}

// CreateTexture copies the pixel data into an NRGBA image.
func (d *SoftwareDevice) CreateTexture(up TextureUpload) (TextureID, error) {
	if d.destroyed {
		return 0, ErrClosed
	}
	if up.Width <= 0 || up.Height <= 0 || len(up.Pixels) < up.Width*up.Height*4 {
		return 0, fmt.Errorf("%w: bad upload %dx%d with %d bytes",
			ErrImageUnavailable, up.Width, up.Height, len(up.Pixels))
	}
	img := image.NewNRGBA(image.Rect(0, 0, up.Width, up.Height))
	copy(img.Pix, up.Pixels[:up.Width*up.Height*4])
	d.nextTex++
	d.textures[d.nextTex] = img
	return d.nextTex, nil
}

// DestroyTexture releases a texture. Unknown handles are ignored.
func (d *SoftwareDevice) DestroyTexture(id TextureID) {
	delete(d.textures, id)
}

// BeginFrame allocates a fresh transparent target.
func (d *SoftwareDevice) BeginFrame(width, height int) error {
	if d.destroyed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrContextUnavailable, width, height)
	}
	d.target = image.NewNRGBA(image.Rect(0, 0, width, height))
	d.inFrame = true
	d.bound = false
	return nil
}

// Clear fills the target with a color.
func (d *SoftwareDevice) Clear(c color.NRGBA) {
	if d.target == nil {
		return
	}
	for i := 0; i < len(d.target.Pix); i += 4 {
		d.target.Pix[i+0] = c.R
		d.target.Pix[i+1] = c.G
		d.target.Pix[i+2] = c.B
		d.target.Pix[i+3] = c.A
	}
}

// BindProgram makes the program current for subsequent draws.
func (d *SoftwareDevice) BindProgram(id ProgramID) error {
	kind, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("%w: unknown program %d", ErrShaderCompileFailed, id)
	}
	d.current = kind
	d.bound = true
	return nil
}

// Draw rasterizes one quad into the target. Destination pixels map back
// through the inverse transform into quad-local space; samples outside
// the quad are discarded, inside ones sample the texture bilinearly,
// run the current program's color math, and composite over the target.
func (d *SoftwareDevice) Draw(call DrawCall) error {
	if d.destroyed {
		return ErrClosed
	}
	if !d.inFrame || d.target == nil {
		return fmt.Errorf("%w: draw outside frame", ErrContextUnavailable)
	}
	if !d.bound {
		return fmt.Errorf("%w: no program bound", ErrShaderCompileFailed)
	}

	inv, ok := invert3(call.Matrix)
	if !ok {
		// Degenerate transform, nothing visible.
		return nil
	}

	src := d.textures[call.Texture]
	if call.Texture != 0 && src == nil {
		return fmt.Errorf("%w: texture %d", ErrTextureNotFound, call.Texture)
	}
	if src != nil && d.current == ProgramBlur && call.BlurRadius > 0 {
		src = gaussianBlur(src, call.BlurRadius)
	}

	mode := layer.BlendMode(call.Blend)
	if d.current != ProgramBlend {
		mode = layer.BlendNormal
	}

	minX, minY, maxX, maxY := quadBounds(call, d.target.Bounds())
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			// Map the pixel center back into quad-local coordinates.
			px, py := float64(x)+0.5, float64(y)+0.5
			lx := inv[0]*px + inv[1]*py + inv[2]
			ly := inv[3]*px + inv[4]*py + inv[5]

			u := (lx - call.DstX) / call.DstW
			v := (ly - call.DstY) / call.DstH
			if u < 0 || u >= 1 || v < 0 || v >= 1 {
				continue
			}

			var sr, sg, sb, sa float64
			if src != nil {
				sr, sg, sb, sa = sampleBilinear(src, u, v)
			} else {
				sr = float64(call.Solid.R) / 255
				sg = float64(call.Solid.G) / 255
				sb = float64(call.Solid.B) / 255
				sa = float64(call.Solid.A) / 255
			}
			if d.current == ProgramColorAdjust && !call.Adjust.IsIdentity() {
				sr, sg, sb = call.Adjust.Apply(sr, sg, sb)
			}

			i := d.target.PixOffset(x, y)
			dr := float64(d.target.Pix[i+0]) / 255
			dg := float64(d.target.Pix[i+1]) / 255
			db := float64(d.target.Pix[i+2]) / 255
			da := float64(d.target.Pix[i+3]) / 255

			r, g, b, a := Composite(mode, call.Opacity, sr, sg, sb, sa, dr, dg, db, da)
			d.target.Pix[i+0] = toByte(r)
			d.target.Pix[i+1] = toByte(g)
			d.target.Pix[i+2] = toByte(b)
			d.target.Pix[i+3] = toByte(a)
		}
	}
	return nil
}

// EndFrame finishes the frame. The target stays readable via Image.
func (d *SoftwareDevice) EndFrame() error {
	if d.destroyed {
		return ErrClosed
	}
	if !d.inFrame {
		return fmt.Errorf("%w: end outside frame", ErrContextUnavailable)
	}
	d.inFrame = false
	return nil
}

// Destroy releases all resources. Further calls return ErrClosed.
func (d *SoftwareDevice) Destroy() {
	d.programs = make(map[ProgramID]ProgramKind)
	d.textures = make(map[TextureID]*image.NRGBA)
	d.target = nil
	d.destroyed = true
}

// Image returns the last rendered frame, or nil before the first frame.
func (d *SoftwareDevice) Image() *image.NRGBA { return d.target }

// TextureCount reports live textures, for leak checks in tests.
func (d *SoftwareDevice) TextureCount() int { return len(d.textures) }

// quadBounds returns the target-clipped bounding box of the transformed
// quad corners.
func quadBounds(call DrawCall, clip image.Rectangle) (minX, minY, maxX, maxY int) {
	m := call.Matrix
	xs := [4]float64{call.DstX, call.DstX + call.DstW, call.DstX, call.DstX + call.DstW}
	ys := [4]float64{call.DstY, call.DstY, call.DstY + call.DstH, call.DstY + call.DstH}

	fminX, fminY := math.Inf(1), math.Inf(1)
	fmaxX, fmaxY := math.Inf(-1), math.Inf(-1)
	for i := range 4 {
		tx := m[0]*xs[i] + m[1]*ys[i] + m[2]
		ty := m[3]*xs[i] + m[4]*ys[i] + m[5]
		fminX = math.Min(fminX, tx)
		fminY = math.Min(fminY, ty)
		fmaxX = math.Max(fmaxX, tx)
		fmaxY = math.Max(fmaxY, ty)
	}

	minX = max(int(math.Floor(fminX)), clip.Min.X)
	minY = max(int(math.Floor(fminY)), clip.Min.Y)
	maxX = min(int(math.Ceil(fmaxX)), clip.Max.X)
	maxY = min(int(math.Ceil(fmaxY)), clip.Max.Y)
	return minX, minY, maxX, maxY
}

// invert3 inverts a row-major 3x3 affine matrix. Returns false when the
// matrix is singular.
func invert3(m [9]float64) ([9]float64, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return [9]float64{}, false
	}
	id := 1 / det
	return [9]float64{
		m[4] * id, -m[1] * id, (m[1]*m[5] - m[4]*m[2]) * id,
		-m[3] * id, m[0] * id, (m[3]*m[2] - m[0]*m[5]) * id,
		0, 0, 1,
	}, true
}

// sampleBilinear samples a texture at normalized (u, v) with clamping.
func sampleBilinear(img *image.NRGBA, u, v float64) (r, g, b, a float64) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	fx := u*float64(w) - 0.5
	fy := v*float64(h) - 0.5

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	c00 := texel(img, x0, y0)
	c10 := texel(img, x0+1, y0)
	c01 := texel(img, x0, y0+1)
	c11 := texel(img, x0+1, y0+1)

	for i := range 4 {
		top := c00[i] + (c10[i]-c00[i])*tx
		bot := c01[i] + (c11[i]-c01[i])*tx
		c00[i] = top + (bot-top)*ty
	}
	return c00[0], c00[1], c00[2], c00[3]
}

// texel reads one pixel with edge clamping, normalized to [0, 1].
func texel(img *image.NRGBA, x, y int) [4]float64 {
	x = min(max(x, 0), img.Rect.Dx()-1)
	y = min(max(y, 0), img.Rect.Dy()-1)
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	return [4]float64{
		float64(img.Pix[i+0]) / 255,
		float64(img.Pix[i+1]) / 255,
		float64(img.Pix[i+2]) / 255,
		float64(img.Pix[i+3]) / 255,
	}
}

// gaussianBlur applies a separable Gaussian blur with sigma = radius/2.
func gaussianBlur(src *image.NRGBA, radius float64) *image.NRGBA {
	sigma := radius / 2
	if sigma <= 0 {
		return src
	}
	half := int(math.Ceil(radius))
	kernel := make([]float64, 2*half+1)
	var sum float64
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := image.NewNRGBA(image.Rect(0, 0, w, h))
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	// Horizontal pass.
	for y := range h {
		for x := range w {
			var acc [4]float64
			for k, kw := range kernel {
				t := texel(src, x+k-half, y)
				for c := range 4 {
					acc[c] += t[c] * kw
				}
			}
			i := tmp.PixOffset(x, y)
			for c := range 4 {
				tmp.Pix[i+c] = toByte(acc[c])
			}
		}
	}
	// Vertical pass.
	for y := range h {
		for x := range w {
			var acc [4]float64
			for k, kw := range kernel {
				t := texel(tmp, x, y+k-half)
				for c := range 4 {
					acc[c] += t[c] * kw
				}
			}
			i := out.PixOffset(x, y)
			for c := range 4 {
				out.Pix[i+c] = toByte(acc[c])
			}
		}
	}
	return out
}

// toByte converts a [0, 1] channel to a rounded byte with clamping.
func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
