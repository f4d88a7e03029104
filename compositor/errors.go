package compositor

import "errors"

// Compositor errors.
var (
	// ErrContextUnavailable is returned when no rendering device can be
	// acquired from the target surface. Initialization failure is fatal
	// to the instance; any fallback rendering path is the caller's
	// responsibility.
	ErrContextUnavailable = errors.New("compositor: rendering context unavailable")

	// ErrShaderCompileFailed is returned when one of the fixed shader
	// programs fails to compile during initialization.
	ErrShaderCompileFailed = errors.New("compositor: shader compilation failed")

	// ErrClosed is returned for render calls after Cleanup.
	ErrClosed = errors.New("compositor: compositor has been cleaned up")

	// ErrTextureNotFound is returned when a device is asked to operate
	// on an unknown texture handle.
	ErrTextureNotFound = errors.New("compositor: texture not found")

	// ErrImageUnavailable is returned when a layer's source image
	// cannot be resolved or decoded.
	ErrImageUnavailable = errors.New("compositor: source image unavailable")
)
