package store

import "errors"

// Store errors. All store methods fail fast with one of these (possibly
// wrapped with detail) rather than silently no-op; callers decide retry
// and surfacing.
var (
	// ErrContainerNotFound is returned for an unknown container id.
	ErrContainerNotFound = errors.New("store: container not found")

	// ErrNotFound is returned for an unknown layer id.
	ErrNotFound = errors.New("store: layer not found")

	// ErrCycleDetected is returned when a reparent would make a layer
	// its own ancestor.
	ErrCycleDetected = errors.New("store: reparent would create a cycle")

	// ErrNothingToUndo is returned by Undo on an empty history stack.
	ErrNothingToUndo = errors.New("store: nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("store: nothing to redo")
)
