package storage

import "errors"

var (
	// ErrNotFound indicates that the requested entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)
