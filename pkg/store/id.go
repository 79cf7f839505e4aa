package store

import "github.com/google/uuid"

// NewID returns a fresh identifier. IDs are always generated server-side;
// callers never supply their own.
func NewID() string {
	return uuid.NewString()
}
