package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrNotFound = errors.New("rating state not found")
)
