package text

import "errors"

// Package errors.
var (
	// ErrFontNotFound is returned when no registered font matches the
	// requested family and no fallback is available.
	ErrFontNotFound = errors.New("text: font not found")

	// ErrFontParse is returned when font data cannot be parsed.
	ErrFontParse = errors.New("text: font parse failed")

	// ErrEmptyText is returned when there is nothing to measure or draw.
	ErrEmptyText = errors.New("text: empty text")
)
