// Package memory defines the persistence contract the runtime depends on.
// The runtime holds a handle to a Store; it never owns a concrete backend.
package memory

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("memory: key not found")
	ErrEmptyKey = errors.New("memory: key cannot be empty")
)

// Scored pairs a stored value with its relevance to a search query.
type Scored struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Score float64         `json:"score"`
}

// Store is the memory collaborator contract. Failures are reported to the
// caller, never swallowed.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value json.RawMessage) error

	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Search returns up to topK values ranked by descending relevance
	// to query. An empty result is not an error.
	Search(ctx context.Context, query string, topK int) ([]Scored, error)
}
