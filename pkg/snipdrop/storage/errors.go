package storage

import "errors"

var (
	// ErrInvalidInput means the caller supplied neither text nor file bytes
	ErrInvalidInput = errors.New("content or file is required")
	// ErrNotFound means no item exists for the given id
	ErrNotFound = errors.New("item not found")
	// ErrPayloadTooLarge means the upload exceeds the configured ceiling
	ErrPayloadTooLarge = errors.New("payload exceeds upload limit")
	// ErrStorageFailure wraps disk or database I/O failures
	ErrStorageFailure = errors.New("storage failure")
	// ErrPayloadMissing means the record exists but its file is gone from disk
	ErrPayloadMissing = errors.New("payload missing from disk")
)
