package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrPersistence = errors.New("persistence unavailable")
	ErrInvalidZone = errors.New("invalid restricted zone")
)
