package layer

// FilterKind identifies a layer filter effect.
type FilterKind uint8

// Filter kind constants. Blur selects the compositor's separable blur
// program; every other kind selects the HSV color-adjustment program.
const (
	FilterBlur FilterKind = iota
	FilterBrightness
	FilterContrast
	FilterSaturation
	FilterHueRotate
)

// String returns a human-readable name for the filter kind.
func (k FilterKind) String() string {
	switch k {
	case FilterBlur:
		return "blur"
	case FilterBrightness:
		return "brightness"
	case FilterContrast:
		return "contrast"
	case FilterSaturation:
		return "saturation"
	case FilterHueRotate:
		return "hue-rotate"
	default:
		return "unknown"
	}
}

// Filter is one filter effect applied to a layer.
// Amount semantics depend on the kind: blur radius in pixels for
// FilterBlur, a signed adjustment in [-1, 1] for brightness/contrast/
// saturation, and degrees for FilterHueRotate.
type Filter struct {
	Kind   FilterKind `json:"kind"`
	Amount float64    `json:"amount"`
}

// Shadow describes a drop shadow.
type Shadow struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Blur    float64 `json:"blur"`
	Color   string  `json:"color"`
}

// Border describes a layer border.
type Border struct {
	Width float64 `json:"width"`
	Color string  `json:"color"`
}

// Style holds the optional visual styling of a layer.
type Style struct {
	Filters []Filter `json:"filters,omitempty"`
	Shadow  *Shadow  `json:"shadow,omitempty"`
	Border  *Border  `json:"border,omitempty"`
}

// HasFilters returns true if any filter is set.
func (s *Style) HasFilters() bool {
	return s != nil && len(s.Filters) > 0
}

// BlurFilter returns the first blur filter, if any.
func (s *Style) BlurFilter() (Filter, bool) {
	if s == nil {
		return Filter{}, false
	}
	for _, f := range s.Filters {
		if f.Kind == FilterBlur {
			return f, true
		}
	}
	return Filter{}, false
}
