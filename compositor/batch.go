package compositor

import "github.com/gogpu/canvas/layer"

// batchKey groups draw calls that can share one program bind.
type batchKey struct {
	blend   layer.BlendMode
	program ProgramKind
}

// Batch is a run of consecutive layers in paint order that share a
// (blendMode, program) key and are drawn under a single program bind.
type Batch struct {
	Key    batchKey
	Layers []*layer.Layer
}

// Program returns the shader program for the batch.
func (b *Batch) Program() ProgramKind { return b.Key.program }

// BlendMode returns the blend mode for the batch.
func (b *Batch) BlendMode() layer.BlendMode { return b.Key.blend }

// BatchLayers groups consecutive-compatible layers by (blendMode,
// program) to minimize program switches. Layers are grouped, never
// reordered: grouping only merges adjacent draws under the same key, so
// paint order is preserved exactly. Two non-adjacent layers with the
// same key stay in separate batches; Z-order correctness dominates
// batching opportunity.
//
// The input must already be filtered to visible layers in paint order.
func BatchLayers(layers []*layer.Layer) []Batch {
	var batches []Batch
	for _, l := range layers {
		key := batchKey{blend: l.BlendMode, program: SelectProgram(l)}
		if n := len(batches); n > 0 && batches[n-1].Key == key {
			batches[n-1].Layers = append(batches[n-1].Layers, l)
			continue
		}
		batches = append(batches, Batch{Key: key, Layers: []*layer.Layer{l}})
	}
	return batches
}
