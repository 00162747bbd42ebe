// Package services defines the store operations for raw news, topic
// snapshots, and learning materials, plus the retention job that keeps the
// raw and topic collections bounded. This file centralizes the service-level
// error values so callers can check them with errors.Is.
//
// Storage errors are not wrapped here; they reach the caller unchanged.
// Translation into HTTP status codes happens in the handler layer.
package services

import "errors"

var (
	// ErrInvalidAudioField is returned when an audio update names a column
	// outside the known audio fields.
	ErrInvalidAudioField = errors.New("invalid audio field")

	// ErrEmptyAudioURL is returned when an audio update carries a blank URL.
	ErrEmptyAudioURL = errors.New("audio url is empty")

	// ErrMissingOriginalLink is returned when a raw record in a batch has no
	// original link. The batch is rejected before anything is written.
	ErrMissingOriginalLink = errors.New("record has no original link")

	// ErrNilMaterial is returned by MaterialStore.Create for a nil material.
	ErrNilMaterial = errors.New("material is nil")
)
