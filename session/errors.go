package session

import "errors"

// Package errors.
var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrVersionOutOfRange is returned when a version index does not
	// exist in the session's image list.
	ErrVersionOutOfRange = errors.New("session: version out of range")
)
