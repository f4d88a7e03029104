package store

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gogpu/canvas/layer"
)

func opNamed(name string) Operation {
	id := uuid.New()
	return Operation{
		Name:   name,
		Before: map[uuid.UUID]*layer.Layer{id: nil},
		After:  map[uuid.UUID]*layer.Layer{id: layer.New(layer.KindImage, name)},
	}
}

func TestHistoryStackDiscipline(t *testing.T) {
	h := NewHistory(10)

	h.Record(opNamed("a"))
	h.Record(opNamed("b"))
	if h.UndoDepth() != 2 {
		t.Fatalf("UndoDepth = %d, want 2", h.UndoDepth())
	}

	op, ok := h.PopUndo()
	if !ok || op.Name != "b" {
		t.Fatalf("PopUndo = %q, %v; want b", op.Name, ok)
	}
	if h.RedoDepth() != 1 {
		t.Fatalf("RedoDepth = %d, want 1", h.RedoDepth())
	}

	op, ok = h.PopRedo()
	if !ok || op.Name != "b" {
		t.Fatalf("PopRedo = %q, %v; want b", op.Name, ok)
	}
}

func TestHistoryRecordClearsRedo(t *testing.T) {
	h := NewHistory(10)
	h.Record(opNamed("a"))
	h.PopUndo()
	if h.RedoDepth() != 1 {
		t.Fatalf("RedoDepth = %d, want 1", h.RedoDepth())
	}

	h.Record(opNamed("b"))
	if h.RedoDepth() != 0 {
		t.Error("Record must clear the redo stack")
	}
}

func TestHistoryTrimsOldestFirst(t *testing.T) {
	h := NewHistory(2)
	h.Record(opNamed("a"))
	h.Record(opNamed("b"))
	h.Record(opNamed("c"))

	if h.UndoDepth() != 2 {
		t.Fatalf("UndoDepth = %d, want 2", h.UndoDepth())
	}
	op, _ := h.PopUndo()
	if op.Name != "c" {
		t.Errorf("top = %q, want c", op.Name)
	}
	op, _ = h.PopUndo()
	if op.Name != "b" {
		t.Errorf("next = %q, want b (a trimmed)", op.Name)
	}
}

func TestHistoryDefaultsAndClear(t *testing.T) {
	h := NewHistory(0)
	if h.max != DefaultMaxHistorySize {
		t.Errorf("max = %d, want %d", h.max, DefaultMaxHistorySize)
	}

	h.Record(opNamed("a"))
	h.PopUndo()
	h.Clear()
	if h.UndoDepth() != 0 || h.RedoDepth() != 0 {
		t.Error("Clear must drop both stacks")
	}
}
