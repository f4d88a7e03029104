package store

import (
	"github.com/google/uuid"

	"github.com/gogpu/canvas/layer"
)

// DefaultMaxHistorySize bounds the undo stack per container.
const DefaultMaxHistorySize = 50

// Operation is one undoable unit: before/after layer snapshots keyed by
// the affected layer ids, plus the paint-order lists on both sides. A
// nil snapshot on one side means the layer did not exist on that side
// (nil Before = created by the operation, nil After = deleted by it).
type Operation struct {
	Name   string
	Before map[uuid.UUID]*layer.Layer
	After  map[uuid.UUID]*layer.Layer

	OrderBefore []uuid.UUID
	OrderAfter  []uuid.UUID
}

// History is a bounded undo/redo stack of operations. Recording a new
// operation clears the redo stack; when the undo stack exceeds its
// bound, the oldest entries are dropped first.
//
// History is not safe for concurrent use on its own; the Store
// serializes access under its mutex.
type History struct {
	undo []Operation
	redo []Operation
	max  int
}

// NewHistory creates a history bounded to max operations.
// Non-positive max uses DefaultMaxHistorySize.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistorySize
	}
	return &History{max: max}
}

// Record pushes an operation onto the undo stack and clears redo.
func (h *History) Record(op Operation) {
	h.undo = append(h.undo, op)
	if len(h.undo) > h.max {
		// Drop oldest first.
		copy(h.undo, h.undo[len(h.undo)-h.max:])
		h.undo = h.undo[:h.max]
	}
	h.redo = h.redo[:0]
}

// PopUndo removes and returns the most recent operation, moving it to
// the redo stack.
func (h *History) PopUndo() (Operation, bool) {
	if len(h.undo) == 0 {
		return Operation{}, false
	}
	op := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, op)
	return op, true
}

// PopRedo removes and returns the most recently undone operation,
// moving it back to the undo stack.
func (h *History) PopRedo() (Operation, bool) {
	if len(h.redo) == 0 {
		return Operation{}, false
	}
	op := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, op)
	return op, true
}

// UndoDepth returns the number of undoable operations.
func (h *History) UndoDepth() int { return len(h.undo) }

// RedoDepth returns the number of redoable operations.
func (h *History) RedoDepth() int { return len(h.redo) }

// Clear drops both stacks.
func (h *History) Clear() {
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}
