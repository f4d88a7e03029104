//go:build !nogpu

package compositor

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Uniform buffer layout shared by all programs. A mat3x3<f32> occupies
// three vec4-aligned columns (48 bytes); program-specific parameters
// follow at offset 48. All programs fit in 96 bytes.
const quadUniformSize = 96

// quadVertexStride is the byte stride per vertex: position (vec2<f32>)
// plus tex_coord (vec2<f32>).
const quadVertexStride = 16

// copyPitchAlignment is the BytesPerRow alignment WebGPU and DX12
// require for texture-to-buffer copies.
const copyPitchAlignment = 256

// WGPUDevice implements Device on a gogpu/wgpu HAL device and queue.
// Each program is a render pipeline drawing textured quads; frames
// render into an offscreen RGBA8 target that EndFrame reads back to the
// CPU. Not safe for concurrent use; the compositor serializes access.
type WGPUDevice struct {
	device hal.Device
	queue  hal.Queue

	programs map[ProgramID]*gpuProgram
	textures map[TextureID]*gpuTexture
	nextID   atomic.Uint64

	linearSampler  hal.Sampler
	nearestSampler hal.Sampler
	quadIndex      hal.Buffer

	// Frame state.
	width, height int
	target        *gpuTexture
	backdrop      *gpuTexture
	encoder       hal.CommandEncoder
	pass          hal.RenderPassEncoder
	encoding      bool
	clearColor    gputypes.Color
	passLoad      gputypes.LoadOp
	current       *gpuProgram
	frame         *image.NRGBA

	// Per-frame resources released after submit.
	frameBuffers  []hal.Buffer
	frameGroups   []hal.BindGroup
	frameTextures []*gpuTexture

	destroyed bool
}

type gpuProgram struct {
	kind       ProgramKind
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

type gpuTexture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  int
	height int
	mips   uint32
	filter FilterMode
}

// NewWGPUDevice wraps a HAL device and queue. Samplers and the shared
// quad index buffer are created up front.
func NewWGPUDevice(device hal.Device, queue hal.Queue) (*WGPUDevice, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil hal device or queue", ErrContextUnavailable)
	}
	d := &WGPUDevice{
		device:   device,
		queue:    queue,
		programs: make(map[ProgramID]*gpuProgram),
		textures: make(map[TextureID]*gpuTexture),
	}
	d.nextID.Store(1)

	linear, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "canvas_linear_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create linear sampler: %w", err)
	}
	d.linearSampler = linear

	nearest, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "canvas_nearest_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		d.device.DestroySampler(d.linearSampler)
		return nil, fmt.Errorf("create nearest sampler: %w", err)
	}
	d.nearestSampler = nearest

	// Shared index buffer for the two-triangle quad: 0,1,2 2,3,0.
	idx := []uint16{0, 1, 2, 2, 3, 0}
	idxData := make([]byte, len(idx)*2)
	for i, v := range idx {
		binary.LittleEndian.PutUint16(idxData[i*2:], v)
	}
	buf, err := d.createAndUploadBuffer("canvas_quad_index", idxData,
		gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst)
	if err != nil {
		d.device.DestroySampler(d.linearSampler)
		d.device.DestroySampler(d.nearestSampler)
		return nil, err
	}
	d.quadIndex = buf

	return d, nil
}

func (d *WGPUDevice) newID() uint64 { return d.nextID.Add(1) - 1 }

// CompileProgram compiles WGSL through naga to SPIR-V, creates the
// shader module, and builds the program's render pipeline.
func (d *WGPUDevice) CompileProgram(kind ProgramKind, wgsl string) (ProgramID, error) {
	if d.destroyed {
		return 0, ErrClosed
	}
	spirv, err := compileToSPIRV(wgsl)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrShaderCompileFailed, kind, err)
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "canvas_" + kind.String(),
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: create module: %v", ErrShaderCompileFailed, kind, err)
	}

	p := &gpuProgram{kind: kind, module: module}
	if err := d.buildPipeline(p); err != nil {
		d.device.DestroyShaderModule(module)
		return 0, err
	}

	id := ProgramID(d.newID())
	d.programs[id] = p
	return id, nil
}

// buildPipeline creates the bind group layout, pipeline layout, and
// render pipeline for a program.
func (d *WGPUDevice) buildPipeline(p *gpuProgram) error {
	// Binding 0: uniforms, 1: layer texture, 2: sampler. The blend
	// program additionally reads the backdrop at binding 3.
	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    2,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	}
	if p.kind == ProgramBlend {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    3,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}

	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "canvas_" + p.kind.String() + "_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create %s bind layout: %w", p.kind, err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "canvas_" + p.kind.String() + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(bindLayout)
		return fmt.Errorf("create %s pipeline layout: %w", p.kind, err)
	}
	p.pipeLayout = pipeLayout

	// The blend program computes the full composite against a backdrop
	// copy in the shader, so its target replaces. The other programs
	// composite source-over through fixed-function blending.
	var blend *gputypes.BlendState
	if p.kind != ProgramBlend {
		b := gputypes.BlendStatePremultiplied()
		blend = &b
	}

	pipeline, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "canvas_" + p.kind.String() + "_pipeline",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
			Buffers:    quadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatRGBA8Unorm,
					Blend:     blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(pipeLayout)
		d.device.DestroyBindGroupLayout(bindLayout)
		return fmt.Errorf("create %s pipeline: %w", p.kind, err)
	}
	p.pipeline = pipeline
	return nil
}

// CreateTexture uploads RGBA8 pixel data, generating a CPU mip chain
// when requested.
func (d *WGPUDevice) CreateTexture(up TextureUpload) (TextureID, error) {
	if d.destroyed {
		return 0, ErrClosed
	}
	if up.Width <= 0 || up.Height <= 0 || len(up.Pixels) < up.Width*up.Height*4 {
		return 0, fmt.Errorf("%w: bad upload %dx%d with %d bytes",
			ErrImageUnavailable, up.Width, up.Height, len(up.Pixels))
	}

	mips := uint32(1)
	if up.GenerateMips {
		mips = mipLevelCount(up.Width, up.Height)
	}

	w, h := uint32(up.Width), uint32(up.Height)
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         up.Label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("create texture: %w", err)
	}

	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         up.Label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: mips,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return 0, fmt.Errorf("create texture view: %w", err)
	}

	// Upload level 0, then CPU-downsampled levels for the mip chain.
	pixels := up.Pixels[:up.Width*up.Height*4]
	lw, lh := up.Width, up.Height
	for level := uint32(0); level < mips; level++ {
		err := d.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: tex, MipLevel: level},
			pixels,
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(lw) * 4,
				RowsPerImage: uint32(lh),
			},
			&hal.Extent3D{Width: uint32(lw), Height: uint32(lh), DepthOrArrayLayers: 1},
		)
		if err != nil {
			d.device.DestroyTextureView(view)
			d.device.DestroyTexture(tex)
			return 0, fmt.Errorf("upload mip %d: %w", level, err)
		}
		if level+1 < mips {
			pixels, lw, lh = halveRGBA(pixels, lw, lh)
		}
	}

	id := TextureID(d.newID())
	d.textures[id] = &gpuTexture{
		tex:    tex,
		view:   view,
		width:  up.Width,
		height: up.Height,
		mips:   mips,
		filter: up.Filter,
	}
	return id, nil
}

// DestroyTexture releases a texture. Unknown handles are ignored.
func (d *WGPUDevice) DestroyTexture(id TextureID) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	delete(d.textures, id)
	d.destroyGPUTexture(t)
}

func (d *WGPUDevice) destroyGPUTexture(t *gpuTexture) {
	if t.view != nil {
		d.device.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		d.device.DestroyTexture(t.tex)
	}
}

// BeginFrame creates the offscreen target and opens the command
// encoder. The first pass clears to transparent unless Clear overrides
// the color.
func (d *WGPUDevice) BeginFrame(width, height int) error {
	if d.destroyed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrContextUnavailable, width, height)
	}

	target, err := d.createTarget(width, height, "canvas_frame_target")
	if err != nil {
		return err
	}
	d.target = target
	d.width, d.height = width, height
	d.clearColor = gputypes.Color{}
	d.passLoad = gputypes.LoadOpClear
	d.frame = nil

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "canvas_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("canvas_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	d.encoder = encoder
	d.encoding = true
	return nil
}

// createTarget allocates a render target texture and view.
func (d *WGPUDevice) createTarget(width, height int, label string) (*gpuTexture, error) {
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create %s view: %w", label, err)
	}
	return &gpuTexture{tex: tex, view: view, width: width, height: height, mips: 1}, nil
}

// Clear sets the color the next pass clears to. Called after draws it
// discards what was rendered so far in the frame.
func (d *WGPUDevice) Clear(c color.NRGBA) {
	d.clearColor = gputypes.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
		A: float64(c.A) / 255,
	}
	if d.pass != nil {
		d.pass.End()
		d.pass = nil
	}
	d.passLoad = gputypes.LoadOpClear
}

// BindProgram selects the pipeline for subsequent draws.
func (d *WGPUDevice) BindProgram(id ProgramID) error {
	p, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("%w: unknown program %d", ErrShaderCompileFailed, id)
	}
	d.current = p
	return nil
}

// ensurePass opens the render pass on the frame target if needed.
func (d *WGPUDevice) ensurePass() {
	if d.pass != nil {
		return
	}
	d.pass = d.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "canvas_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       d.target.view,
			LoadOp:     d.passLoad,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: d.clearColor,
		}},
	})
	d.passLoad = gputypes.LoadOpLoad
}

// Draw renders one quad with the bound program.
func (d *WGPUDevice) Draw(call DrawCall) error {
	if d.destroyed {
		return ErrClosed
	}
	if !d.encoding || d.target == nil {
		return fmt.Errorf("%w: draw outside frame", ErrContextUnavailable)
	}
	if d.current == nil {
		return fmt.Errorf("%w: no program bound", ErrShaderCompileFailed)
	}

	srcView, sampler, err := d.resolveSource(call)
	if err != nil {
		return err
	}

	// Blur runs two separable passes into temporaries first; the final
	// quad then samples the blurred result with a zero-radius kernel.
	if d.current.kind == ProgramBlur && call.BlurRadius > 0 && call.Texture != 0 {
		src := d.textures[call.Texture]
		blurred, berr := d.blurOffscreen(src, call.BlurRadius)
		if berr != nil {
			return berr
		}
		srcView = blurred.view
		call.BlurRadius = 0
	}

	// The blend program reads the backdrop, which requires flushing the
	// work recorded so far into the target and snapshotting it.
	var backdropView hal.TextureView
	if d.current.kind == ProgramBlend {
		if err := d.snapshotBackdrop(); err != nil {
			return err
		}
		backdropView = d.backdrop.view
	}

	uniform := d.packUniform(call, [2]float64{0, 0})
	return d.drawQuad(d.current, srcView, sampler, backdropView, uniform,
		call.DstX, call.DstY, call.DstW, call.DstH, d.target)
}

// resolveSource returns the texture view and sampler for a draw call.
// Solid fills use a per-frame 1x1 texture.
func (d *WGPUDevice) resolveSource(call DrawCall) (hal.TextureView, hal.Sampler, error) {
	sampler := d.linearSampler
	if call.Texture == 0 {
		id, err := d.CreateTexture(TextureUpload{
			Width:  1,
			Height: 1,
			Pixels: []byte{call.Solid.R, call.Solid.G, call.Solid.B, call.Solid.A},
			Label:  "canvas_solid",
		})
		if err != nil {
			return nil, nil, err
		}
		t := d.textures[id]
		delete(d.textures, id)
		d.frameTextures = append(d.frameTextures, t)
		return t.view, sampler, nil
	}
	t, ok := d.textures[call.Texture]
	if !ok {
		return nil, nil, fmt.Errorf("%w: texture %d", ErrTextureNotFound, call.Texture)
	}
	return t.view, d.samplerFor(t), nil
}

// samplerFor picks the sampler for a texture. Mip-mapped textures
// always filter trilinearly; others honor the upload-time choice.
func (d *WGPUDevice) samplerFor(t *gpuTexture) hal.Sampler {
	if t.mips == 1 && t.filter == FilterNearest {
		return d.nearestSampler
	}
	return d.linearSampler
}

// drawQuad records one quad draw into a pass on the given target.
func (d *WGPUDevice) drawQuad(p *gpuProgram, srcView hal.TextureView, sampler hal.Sampler,
	backdropView hal.TextureView, uniform []byte, x, y, w, h float64, target *gpuTexture) error {

	uniformBuf, err := d.createAndUploadBuffer("canvas_quad_uniform", uniform,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.frameBuffers = append(d.frameBuffers, uniformBuf)

	vertexBuf, err := d.createAndUploadBuffer("canvas_quad_vertices",
		buildQuadVertices(x, y, w, h),
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.frameBuffers = append(d.frameBuffers, vertexBuf)

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{
			Buffer: uniformBuf.NativeHandle(),
			Offset: 0,
			Size:   quadUniformSize,
		}},
		{Binding: 1, Resource: gputypes.TextureViewBinding{
			TextureView: srcView.NativeHandle(),
		}},
		{Binding: 2, Resource: gputypes.SamplerBinding{
			Sampler: sampler.NativeHandle(),
		}},
	}
	if backdropView != nil {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: 3,
			Resource: gputypes.TextureViewBinding{
				TextureView: backdropView.NativeHandle(),
			},
		})
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "canvas_quad_bg",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	d.frameGroups = append(d.frameGroups, group)

	if target == d.target {
		d.ensurePass()
		d.recordQuad(d.pass, p, group, vertexBuf)
		return nil
	}

	// Offscreen pass for blur intermediates.
	pass := d.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "canvas_offscreen_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{},
		}},
	})
	d.recordQuad(pass, p, group, vertexBuf)
	pass.End()
	return nil
}

func (d *WGPUDevice) recordQuad(pass hal.RenderPassEncoder, p *gpuProgram, group hal.BindGroup, vertexBuf hal.Buffer) {
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.SetVertexBuffer(0, vertexBuf, 0)
	pass.SetIndexBuffer(d.quadIndex, gputypes.IndexFormatUint16, 0)
	pass.DrawIndexed(6, 1, 0, 0, 0)
}

// blurOffscreen runs the separable blur: horizontal into one temporary
// target, vertical into a second. Both are released at frame end. The
// main pass is suspended while the offscreen passes record.
func (d *WGPUDevice) blurOffscreen(src *gpuTexture, radius float64) (*gpuTexture, error) {
	if d.pass != nil {
		d.pass.End()
		d.pass = nil
	}

	tmpA, err := d.createTarget(src.width, src.height, "canvas_blur_h")
	if err != nil {
		return nil, err
	}
	d.frameTextures = append(d.frameTextures, tmpA)
	tmpB, err := d.createTarget(src.width, src.height, "canvas_blur_v")
	if err != nil {
		return nil, err
	}
	d.frameTextures = append(d.frameTextures, tmpB)

	w, h := float64(src.width), float64(src.height)
	texel := [2]float64{1 / w, 1 / h}
	call := DrawCall{
		Matrix:     targetMatrix(src.width, src.height),
		DstW:       w,
		DstH:       h,
		Opacity:    1,
		BlurRadius: radius,
	}

	blur := d.current
	if err := d.drawQuad(blur, src.view, d.linearSampler, nil,
		d.packBlurUniform(call, [2]float64{1, 0}, texel), 0, 0, w, h, tmpA); err != nil {
		return nil, err
	}
	if err := d.drawQuad(blur, tmpA.view, d.linearSampler, nil,
		d.packBlurUniform(call, [2]float64{0, 1}, texel), 0, 0, w, h, tmpB); err != nil {
		return nil, err
	}
	return tmpB, nil
}

// snapshotBackdrop flushes recorded work and copies the current target
// into the backdrop texture the blend program samples. The flush
// submits the encoder, reads the target back, and re-uploads it; the
// frame encoder then restarts with LoadOpLoad.
func (d *WGPUDevice) snapshotBackdrop() error {
	pixels, err := d.flushAndReadTarget()
	if err != nil {
		return err
	}

	if d.backdrop == nil || d.backdrop.width != d.width || d.backdrop.height != d.height {
		if d.backdrop != nil {
			d.destroyGPUTexture(d.backdrop)
			d.backdrop = nil
		}
		tex, terr := d.device.CreateTexture(&hal.TextureDescriptor{
			Label:         "canvas_backdrop",
			Size:          hal.Extent3D{Width: uint32(d.width), Height: uint32(d.height), DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if terr != nil {
			return fmt.Errorf("create backdrop: %w", terr)
		}
		view, verr := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:         "canvas_backdrop_view",
			Format:        gputypes.TextureFormatRGBA8Unorm,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if verr != nil {
			d.device.DestroyTexture(tex)
			return fmt.Errorf("create backdrop view: %w", verr)
		}
		d.backdrop = &gpuTexture{tex: tex, view: view, width: d.width, height: d.height, mips: 1}
	}

	werr := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: d.backdrop.tex, MipLevel: 0},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(d.width) * 4,
			RowsPerImage: uint32(d.height),
		},
		&hal.Extent3D{Width: uint32(d.width), Height: uint32(d.height), DepthOrArrayLayers: 1},
	)
	if werr != nil {
		return fmt.Errorf("write backdrop: %w", werr)
	}

	// Restart the frame encoder; subsequent passes load the target.
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "canvas_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("canvas_frame_resume"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	d.encoder = encoder
	d.encoding = true
	d.passLoad = gputypes.LoadOpLoad
	return nil
}

// flushAndReadTarget ends the current pass, submits the encoder, and
// reads the target pixels back. The encoder is consumed.
func (d *WGPUDevice) flushAndReadTarget() ([]byte, error) {
	if d.pass != nil {
		d.pass.End()
		d.pass = nil
	}

	w, h := uint32(d.width), uint32(d.height)
	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ uint32(copyPitchAlignment-1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	stagingBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "canvas_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.encoder.DiscardEncoding()
		d.encoding = false
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(stagingBuf)

	d.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: d.target.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	d.encoder.CopyTextureToBuffer(d.target.tex, stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: d.target.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	d.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: d.target.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := d.encoder.EndEncoding()
	if err != nil {
		d.encoding = false
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)
	d.encoding = false

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := d.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait for gpu: %w", err)
	}

	mapping, err := d.device.MapBuffer(stagingBuf, 0, stagingSize)
	if err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	readback := make([]byte, stagingSize)
	copy(readback, unsafe.Slice((*byte)(mapping.Ptr), stagingSize))
	if err := d.device.UnmapBuffer(stagingBuf); err != nil {
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}

	if alignedBytesPerRow == bytesPerRow {
		return readback[:uint64(bytesPerRow)*uint64(h)], nil
	}
	tight := make([]byte, uint64(bytesPerRow)*uint64(h))
	for row := uint32(0); row < h; row++ {
		src := readback[row*alignedBytesPerRow:]
		copy(tight[row*bytesPerRow:(row+1)*bytesPerRow], src[:bytesPerRow])
	}
	return tight, nil
}

// EndFrame submits outstanding work, reads the frame back, and releases
// per-frame resources.
func (d *WGPUDevice) EndFrame() error {
	if d.destroyed {
		return ErrClosed
	}
	if !d.encoding && d.pass == nil && d.target == nil {
		return fmt.Errorf("%w: end outside frame", ErrContextUnavailable)
	}

	pixels, err := d.flushAndReadTarget()
	if err != nil {
		d.releaseFrameResources()
		return err
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.width, d.height))
	copy(img.Pix, pixels)
	d.frame = img

	d.releaseFrameResources()
	return nil
}

func (d *WGPUDevice) releaseFrameResources() {
	for _, b := range d.frameBuffers {
		d.device.DestroyBuffer(b)
	}
	d.frameBuffers = d.frameBuffers[:0]
	for _, g := range d.frameGroups {
		d.device.DestroyBindGroup(g)
	}
	d.frameGroups = d.frameGroups[:0]
	for _, t := range d.frameTextures {
		d.destroyGPUTexture(t)
	}
	d.frameTextures = d.frameTextures[:0]
	if d.target != nil {
		d.destroyGPUTexture(d.target)
		d.target = nil
	}
}

// Image returns the last rendered frame, or nil before the first frame.
func (d *WGPUDevice) Image() *image.NRGBA { return d.frame }

// Destroy releases every live resource. Further calls return ErrClosed.
func (d *WGPUDevice) Destroy() {
	if d.destroyed {
		return
	}
	d.releaseFrameResources()
	if d.backdrop != nil {
		d.destroyGPUTexture(d.backdrop)
		d.backdrop = nil
	}
	for id, t := range d.textures {
		d.destroyGPUTexture(t)
		delete(d.textures, id)
	}
	for id, p := range d.programs {
		d.device.DestroyRenderPipeline(p.pipeline)
		d.device.DestroyPipelineLayout(p.pipeLayout)
		d.device.DestroyBindGroupLayout(p.bindLayout)
		d.device.DestroyShaderModule(p.module)
		delete(d.programs, id)
	}
	if d.quadIndex != nil {
		d.device.DestroyBuffer(d.quadIndex)
		d.quadIndex = nil
	}
	if d.linearSampler != nil {
		d.device.DestroySampler(d.linearSampler)
		d.linearSampler = nil
	}
	if d.nearestSampler != nil {
		d.device.DestroySampler(d.nearestSampler)
		d.nearestSampler = nil
	}
	d.destroyed = true
}

// createAndUploadBuffer creates a GPU buffer and writes data into it.
func (d *WGPUDevice) createAndUploadBuffer(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		d.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

// packUniform serializes the uniform block for the bound program. The
// layer matrix composes with the pixel-to-clip transform of the frame.
func (d *WGPUDevice) packUniform(call DrawCall, texel [2]float64) []byte {
	call.Matrix = composeClip(call.Matrix, d.width, d.height)
	if d.current.kind == ProgramBlur {
		return d.packBlurUniform(call, [2]float64{1, 0}, texel)
	}
	buf := make([]byte, quadUniformSize)
	packMat3(buf, call.Matrix)
	putF32(buf, 48, call.Opacity)
	switch d.current.kind {
	case ProgramBlend:
		binary.LittleEndian.PutUint32(buf[52:], uint32(call.Blend))
	case ProgramColorAdjust:
		putF32(buf, 52, call.Adjust.Brightness)
		putF32(buf, 56, call.Adjust.Contrast)
		putF32(buf, 60, call.Adjust.Saturation)
		putF32(buf, 64, call.Adjust.HueDegrees)
	}
	return buf
}

// packBlurUniform serializes the blur uniform block.
func (d *WGPUDevice) packBlurUniform(call DrawCall, direction, texel [2]float64) []byte {
	buf := make([]byte, quadUniformSize)
	packMat3(buf, call.Matrix)
	putF32(buf, 48, call.Opacity)
	putF32(buf, 52, call.BlurRadius)
	putF32(buf, 56, direction[0])
	putF32(buf, 60, direction[1])
	putF32(buf, 64, texel[0])
	putF32(buf, 68, texel[1])
	return buf
}

// composeClip prepends the pixel-to-clip-space transform of a
// width x height target to a row-major layer matrix.
func composeClip(m [9]float64, width, height int) [9]float64 {
	sx := 2 / float64(width)
	sy := -2 / float64(height)
	// N = [sx 0 -1; 0 sy 1; 0 0 1], result = N * m.
	return [9]float64{
		sx * m[0], sx * m[1], sx*m[2] - 1,
		sy * m[3], sy * m[4], sy*m[5] + 1,
		0, 0, 1,
	}
}

// targetMatrix maps a full-target quad to clip space for offscreen
// passes.
func targetMatrix(width, height int) [9]float64 {
	return composeClip([9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, width, height)
}

// packMat3 writes a row-major 3x3 matrix as the column-major,
// vec4-padded layout WGSL uses for mat3x3<f32>.
func packMat3(buf []byte, m [9]float64) {
	cols := [3][3]float64{
		{m[0], m[3], m[6]},
		{m[1], m[4], m[7]},
		{m[2], m[5], m[8]},
	}
	off := 0
	for _, col := range cols {
		putF32(buf, off, col[0])
		putF32(buf, off+4, col[1])
		putF32(buf, off+8, col[2])
		// Fourth component of each column is padding.
		off += 16
	}
}

func putF32(buf []byte, off int, v float64) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
}

// quadVertexLayout describes the single quad vertex buffer: position
// (vec2<f32>) at shader location 0, tex_coord (vec2<f32>) at location 1.
func quadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{{
		ArrayStride: quadVertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
		},
	}}
}

// buildQuadVertices serializes the four quad corners with UVs.
func buildQuadVertices(x, y, w, h float64) []byte {
	verts := [4][4]float64{
		{x, y, 0, 0},
		{x + w, y, 1, 0},
		{x + w, y + h, 1, 1},
		{x, y + h, 0, 1},
	}
	data := make([]byte, 4*quadVertexStride)
	off := 0
	for _, v := range verts {
		putF32(data, off, v[0])
		putF32(data, off+4, v[1])
		putF32(data, off+8, v[2])
		putF32(data, off+12, v[3])
		off += quadVertexStride
	}
	return data
}

// compileToSPIRV compiles WGSL to little-endian SPIR-V words.
func compileToSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// mipLevelCount returns the full mip chain length for a texture.
func mipLevelCount(width, height int) uint32 {
	n := uint32(1)
	for width > 1 || height > 1 {
		width = max(width/2, 1)
		height = max(height/2, 1)
		n++
	}
	return n
}

// halveRGBA box-filters RGBA8 pixels to the next mip level.
func halveRGBA(pixels []byte, w, h int) ([]byte, int, int) {
	nw, nh := max(w/2, 1), max(h/2, 1)
	out := make([]byte, nw*nh*4)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			x0, y0 := x*2, y*2
			x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
			for c := 0; c < 4; c++ {
				sum := int(pixels[(y0*w+x0)*4+c]) +
					int(pixels[(y0*w+x1)*4+c]) +
					int(pixels[(y1*w+x0)*4+c]) +
					int(pixels[(y1*w+x1)*4+c])
				out[(y*nw+x)*4+c] = uint8(sum / 4)
			}
		}
	}
	return out, nw, nh
}
