package store

import "errors"

// Error taxonomy surfaced by every Store implementation. Callers classify
// failures with errors.Is; implementations wrap these with detail via %w.
var (
	// ErrValidation indicates a malformed or missing required field.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidGenre indicates a genre outside the closed set.
	ErrInvalidGenre = errors.New("invalid genre")
	// ErrConflict indicates a uniqueness violation, e.g. a duplicate email.
	ErrConflict = errors.New("already exists")
	// ErrNotFound indicates the entity or its referenced parent does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the requesting user does not own the notebook.
	ErrForbidden = errors.New("forbidden")
	// ErrDimensionMismatch indicates an embedding vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
