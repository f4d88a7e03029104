package imagesync

import "errors"

// Package errors.
var (
	// ErrEngineClosed is returned for any call after Close.
	ErrEngineClosed = errors.New("imagesync: engine closed")

	// ErrQueueFull is returned when the task queue is at capacity. The
	// task is dropped; the next sync pass retries via hash dedup.
	ErrQueueFull = errors.New("imagesync: queue full")

	// ErrNoSessionLayer is returned when a version selection targets a
	// session no layer is linked to.
	ErrNoSessionLayer = errors.New("imagesync: no layer for session")
)
