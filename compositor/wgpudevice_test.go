//go:build !nogpu

package compositor

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestQuadVertexLayout(t *testing.T) {
	layouts := quadVertexLayout()
	if len(layouts) != 1 {
		t.Fatalf("got %d vertex buffers, want 1", len(layouts))
	}
	l := layouts[0]
	if l.ArrayStride != quadVertexStride {
		t.Errorf("stride = %d, want %d", l.ArrayStride, quadVertexStride)
	}
	if l.StepMode != gputypes.VertexStepModeVertex {
		t.Errorf("step mode = %v, want per-vertex", l.StepMode)
	}

	want := []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
	}
	if len(l.Attributes) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(l.Attributes), len(want))
	}
	for i, attr := range l.Attributes {
		if attr != want[i] {
			t.Errorf("attribute %d = %+v, want %+v", i, attr, want[i])
		}
	}
}

func TestBuildQuadVertices(t *testing.T) {
	data := buildQuadVertices(2, 3, 10, 20)
	if len(data) != 4*quadVertexStride {
		t.Fatalf("len = %d, want %d", len(data), 4*quadVertexStride)
	}
	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	}

	// Corners wind top-left, top-right, bottom-right, bottom-left; UVs
	// span the full texture.
	want := [4][4]float32{
		{2, 3, 0, 0},
		{12, 3, 1, 0},
		{12, 23, 1, 1},
		{2, 23, 0, 1},
	}
	for i, w := range want {
		off := i * quadVertexStride
		got := [4]float32{f32(off), f32(off + 4), f32(off + 8), f32(off + 12)}
		if got != w {
			t.Errorf("corner %d = %v, want %v", i, got, w)
		}
	}
}

func TestMipLevelCount(t *testing.T) {
	tests := []struct {
		w, h int
		want uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{256, 256, 9},
		{256, 1, 9},
		{5, 3, 3},
	}
	for _, tt := range tests {
		if got := mipLevelCount(tt.w, tt.h); got != tt.want {
			t.Errorf("mipLevelCount(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestHalveRGBA(t *testing.T) {
	// 2x2 with all four channels averaging 4/4=1 per pixel value below.
	src := []byte{
		0, 0, 0, 255, 4, 0, 0, 255,
		0, 4, 0, 255, 4, 4, 0, 255,
	}
	out, w, h := halveRGBA(src, 2, 2)
	if w != 1 || h != 1 {
		t.Fatalf("dims = %dx%d, want 1x1", w, h)
	}
	want := []byte{2, 2, 0, 255}
	for i, b := range want {
		if out[i] != b {
			t.Errorf("channel %d = %d, want %d", i, out[i], b)
		}
	}
}
