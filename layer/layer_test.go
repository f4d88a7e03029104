package layer

import "testing"

func TestKindValid(t *testing.T) {
	valid := []Kind{KindImage, KindText, KindGroup, KindBackground, KindEffect, KindMask}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false, want true", k)
		}
	}
	if Kind("video").Valid() {
		t.Error(`Kind("video").Valid() = true, want false`)
	}
	if Kind("").Valid() {
		t.Error(`Kind("").Valid() = true, want false`)
	}
}

func TestParseBlendMode(t *testing.T) {
	tests := []struct {
		in   string
		want BlendMode
	}{
		{"normal", BlendNormal},
		{"multiply", BlendMultiply},
		{"screen", BlendScreen},
		{"overlay", BlendOverlay},
		{"garbage", BlendNormal},
	}
	for _, tt := range tests {
		if got := ParseBlendMode(tt.in); got != tt.want {
			t.Errorf("ParseBlendMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBlendModeStringRoundTrip(t *testing.T) {
	for _, m := range []BlendMode{BlendNormal, BlendMultiply, BlendScreen, BlendOverlay} {
		if got := ParseBlendMode(m.String()); got != m {
			t.Errorf("ParseBlendMode(%v.String()) = %v", m, got)
		}
	}
}

func TestLayerClone(t *testing.T) {
	l := New(KindImage, "photo")
	l.Image = &ImageContent{
		SourceURL:   "file://a.png",
		VersionURLs: []string{"file://a.png", "file://b.png"},
		Generation:  &GenerationInfo{Prompt: "a cat", Model: "m", Seed: 42},
	}
	l.Style = &Style{Filters: []Filter{{Kind: FilterBlur, Amount: 4}}}

	c := l.Clone()
	if c == l {
		t.Fatal("Clone returned the same pointer")
	}

	// Mutating the clone must not leak into the original.
	c.Image.VersionURLs[0] = "changed"
	c.Style.Filters[0].Amount = 99
	c.Image.Generation.Prompt = "a dog"

	if l.Image.VersionURLs[0] != "file://a.png" {
		t.Error("clone shares VersionURLs backing array")
	}
	if l.Style.Filters[0].Amount != 4 {
		t.Error("clone shares Filters backing array")
	}
	if l.Image.Generation.Prompt != "a cat" {
		t.Error("clone shares GenerationInfo")
	}
}

func TestBoundingBoxUnion(t *testing.T) {
	a := BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}
	b := BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}
	u := a.Union(b)
	want := BoundingBox{X: 0, Y: 0, Width: 15, Height: 15}
	if u != want {
		t.Errorf("Union = %+v, want %+v", u, want)
	}

	// Empty box is the identity.
	if got := a.Union(BoundingBox{}); got != a {
		t.Errorf("Union with empty = %+v, want %+v", got, a)
	}
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}
	tests := []struct {
		name string
		b    BoundingBox
		want bool
	}{
		{"overlapping", BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}, true},
		{"touching edge", BoundingBox{X: 10, Y: 0, Width: 5, Height: 5}, false},
		{"disjoint", BoundingBox{X: 20, Y: 20, Width: 5, Height: 5}, false},
		{"contained", BoundingBox{X: 2, Y: 2, Width: 2, Height: 2}, true},
		{"empty", BoundingBox{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}
