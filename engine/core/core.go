package core

import (
	"github.com/google/uuid"
)

// ID identifies documents, points, and sessions.
type ID = string

// NewID returns a fresh random UUID string.
func NewID() ID {
	return uuid.NewString()
}

// CloneMap returns a shallow copy of m, or nil when m is nil.
func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
