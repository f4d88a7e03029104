package layer

import (
	"errors"
	"math"
	"testing"
)

func TestTransformValidate(t *testing.T) {
	tests := []struct {
		name    string
		tr      Transform
		wantErr bool
	}{
		{"default is valid", DefaultTransform(), false},
		{"zero scale x", Transform{ScaleX: 0, ScaleY: 1}, true},
		{"zero scale y", Transform{ScaleX: 1, ScaleY: 0}, true},
		{"negative scale is valid", Transform{ScaleX: -1, ScaleY: 1}, false},
		{"nan translation", Transform{X: math.NaN(), ScaleX: 1, ScaleY: 1}, true},
		{"infinite rotation", Transform{ScaleX: 1, ScaleY: 1, RotationDegrees: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransform) {
				t.Errorf("Validate() error = %v, want ErrInvalidTransform", err)
			}
		})
	}
}

func TestTransformMatrixTranslation(t *testing.T) {
	tr := Transform{X: 10, Y: 20, ScaleX: 1, ScaleY: 1}
	x, y := tr.Matrix().TransformPoint(0, 0)
	if x != 10 || y != 20 {
		t.Errorf("TransformPoint(0,0) = (%g, %g), want (10, 20)", x, y)
	}
}

func TestTransformMatrixScale(t *testing.T) {
	tr := Transform{ScaleX: 2, ScaleY: 3}
	x, y := tr.Matrix().TransformPoint(5, 5)
	if x != 10 || y != 15 {
		t.Errorf("TransformPoint(5,5) = (%g, %g), want (10, 15)", x, y)
	}
}

func TestTransformMatrixRotation(t *testing.T) {
	tr := Transform{ScaleX: 1, ScaleY: 1, RotationDegrees: 90}
	x, y := tr.Matrix().TransformPoint(1, 0)
	if math.Abs(x) > 1e-9 || math.Abs(y-1) > 1e-9 {
		t.Errorf("TransformPoint(1,0) after 90deg = (%g, %g), want (0, 1)", x, y)
	}
}

func TestMatrixInvertRoundTrip(t *testing.T) {
	tr := Transform{X: 3, Y: -7, ScaleX: 2, ScaleY: 0.5, RotationDegrees: 30}
	m := tr.Matrix()
	inv := m.Invert()

	x, y := m.TransformPoint(11, 13)
	rx, ry := inv.TransformPoint(x, y)
	if math.Abs(rx-11) > 1e-9 || math.Abs(ry-13) > 1e-9 {
		t.Errorf("round trip = (%g, %g), want (11, 13)", rx, ry)
	}
}

func TestMatrixInvertDegenerate(t *testing.T) {
	// Non-invertible matrix falls back to identity.
	m := Matrix{}
	if !m.Invert().IsIdentity() {
		t.Error("Invert() of singular matrix should return identity")
	}
}
