package layer

import "errors"

// Data-model errors.
var (
	// ErrInvalidTransform is returned when a transform has a zero scale
	// factor or a non-finite component.
	ErrInvalidTransform = errors.New("layer: invalid transform")

	// ErrUnknownKind is returned when a layer kind is outside the
	// variant union.
	ErrUnknownKind = errors.New("layer: unknown layer kind")
)
