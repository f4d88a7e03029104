package compositor

import (
	"testing"

	"github.com/gogpu/canvas/layer"
)

func plainLayer(name string) *layer.Layer {
	return &layer.Layer{Name: name, BlendMode: layer.BlendNormal}
}

func blendLayer(name string, mode layer.BlendMode) *layer.Layer {
	return &layer.Layer{Name: name, BlendMode: mode}
}

func TestBatchLayersMergesAdjacent(t *testing.T) {
	layers := []*layer.Layer{
		plainLayer("a"), plainLayer("b"), plainLayer("c"),
	}
	batches := BatchLayers(layers)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Layers) != 3 {
		t.Errorf("batch holds %d layers, want 3", len(batches[0].Layers))
	}
}

func TestBatchLayersSplitsOnKeyChange(t *testing.T) {
	layers := []*layer.Layer{
		plainLayer("a"),
		blendLayer("b", layer.BlendMultiply),
		plainLayer("c"),
	}
	batches := BatchLayers(layers)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if batches[0].Program() != ProgramTexture ||
		batches[1].Program() != ProgramBlend ||
		batches[2].Program() != ProgramTexture {
		t.Errorf("unexpected programs: %v %v %v",
			batches[0].Program(), batches[1].Program(), batches[2].Program())
	}
}

// Non-adjacent layers with the same key must stay in separate batches;
// merging them would reorder draws.
func TestBatchLayersNeverReorders(t *testing.T) {
	layers := []*layer.Layer{
		plainLayer("a"),
		blendLayer("x", layer.BlendScreen),
		plainLayer("b"),
		blendLayer("y", layer.BlendScreen),
	}
	batches := BatchLayers(layers)
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}

	var flat []string
	for _, b := range batches {
		for _, l := range b.Layers {
			flat = append(flat, l.Name)
		}
	}
	want := []string{"a", "x", "b", "y"}
	for i := range want {
		if flat[i] != want[i] {
			t.Fatalf("paint order changed: got %v, want %v", flat, want)
		}
	}
}

func TestBatchLayersEmpty(t *testing.T) {
	if got := BatchLayers(nil); got != nil {
		t.Errorf("BatchLayers(nil) = %v, want nil", got)
	}
}
