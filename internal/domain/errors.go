package domain

import "errors"

// Sentinel errors shared across storage, the assessment pipeline, and the
// API layer. Wrap with fmt.Errorf("%w: ...") to add context.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
