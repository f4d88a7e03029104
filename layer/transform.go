package layer

import (
	"fmt"
	"math"
)

// Transform is the pure affine description of a layer's placement:
// translation, scale, rotation, and skew. It carries no rendering
// behavior; the compositor composes it into a Matrix per frame.
//
// Invariant: ScaleX and ScaleY must stay non-zero. A zero scale collapses
// the layer to a degenerate matrix, so it is rejected at the mutation
// boundary (Validate) rather than silently clamped.
type Transform struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	ScaleX          float64 `json:"scaleX"`
	ScaleY          float64 `json:"scaleY"`
	RotationDegrees float64 `json:"rotationDegrees"`
	SkewX           float64 `json:"skewX"`
	SkewY           float64 `json:"skewY"`
}

// DefaultTransform returns the identity placement at the origin.
func DefaultTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Validate checks the transform invariants. It returns
// ErrInvalidTransform (wrapped with detail) if either scale factor is
// zero or any component is not a finite number.
func (t Transform) Validate() error {
	if t.ScaleX == 0 || t.ScaleY == 0 {
		return fmt.Errorf("%w: zero scale (%g, %g)", ErrInvalidTransform, t.ScaleX, t.ScaleY)
	}
	for _, v := range [...]float64{t.X, t.Y, t.ScaleX, t.ScaleY, t.RotationDegrees, t.SkewX, t.SkewY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite component %g", ErrInvalidTransform, v)
		}
	}
	return nil
}

// Matrix composes the transform into an affine matrix. Composition order
// is translate, then rotate, then skew, then scale, so scale applies in
// the layer's local space.
func (t Transform) Matrix() Matrix {
	m := Translation(t.X, t.Y)
	if t.RotationDegrees != 0 {
		m = m.Multiply(Rotation(t.RotationDegrees * math.Pi / 180))
	}
	if t.SkewX != 0 || t.SkewY != 0 {
		m = m.Multiply(Shearing(math.Tan(t.SkewX*math.Pi/180), math.Tan(t.SkewY*math.Pi/180)))
	}
	if t.ScaleX != 1 || t.ScaleY != 1 {
		m = m.Multiply(Scaling(t.ScaleX, t.ScaleY))
	}
	return m
}
