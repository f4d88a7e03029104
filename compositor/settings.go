package compositor

// QualityTier selects the rendering quality/performance trade-off.
type QualityTier uint8

// Quality tier constants.
const (
	QualityDraft QualityTier = iota
	QualityStandard
	QualityHigh
)

// String returns a human-readable name for the tier.
func (q QualityTier) String() string {
	switch q {
	case QualityDraft:
		return "draft"
	case QualityStandard:
		return "standard"
	case QualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// FilterMode selects texture sampling for non-mip-mapped textures.
type FilterMode uint8

// Filter mode constants.
const (
	FilterBilinear FilterMode = iota
	FilterNearest
)

// Default render settings.
const (
	// DefaultMaxTextureDim is the largest texture edge uploaded to the
	// device; larger sources are downscaled before upload.
	DefaultMaxTextureDim = 4096

	// DefaultCacheSizeMB is the texture cache budget in megabytes.
	DefaultCacheSizeMB = 256
)

// RenderSettings configures the compositor. It is consumed at
// construction; changing a value afterwards has no effect.
type RenderSettings struct {
	// Quality selects the quality tier.
	Quality QualityTier

	// UseGPU selects the GPU device path. When false the caller is
	// expected to inject a software device.
	UseGPU bool

	// CacheEnabled toggles the texture cache. When disabled every frame
	// re-uploads layer textures.
	CacheEnabled bool

	// CacheSizeMB is the texture cache budget in megabytes.
	// Non-positive values use DefaultCacheSizeMB.
	CacheSizeMB int

	// Antialias enables edge antialiasing in the shader programs.
	Antialias bool

	// Filter selects sampling for non-power-of-two textures (textures
	// with power-of-two dimensions get mip-maps and trilinear
	// filtering regardless).
	Filter FilterMode

	// MaxTextureDim caps texture edge length. Non-positive values use
	// DefaultMaxTextureDim.
	MaxTextureDim int
}

// DefaultSettings returns the standard-quality configuration.
func DefaultSettings() RenderSettings {
	return RenderSettings{
		Quality:       QualityStandard,
		UseGPU:        true,
		CacheEnabled:  true,
		CacheSizeMB:   DefaultCacheSizeMB,
		Antialias:     true,
		MaxTextureDim: DefaultMaxTextureDim,
	}
}

// normalized returns a copy with defaults applied.
func (s RenderSettings) normalized() RenderSettings {
	if s.CacheSizeMB <= 0 {
		s.CacheSizeMB = DefaultCacheSizeMB
	}
	if s.MaxTextureDim <= 0 {
		s.MaxTextureDim = DefaultMaxTextureDim
	}
	return s
}
