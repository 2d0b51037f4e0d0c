// Package memstore provides memory.Store implementations.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/agent-runtime/domain/memory"
)

// InMemory is a map-backed memory.Store. Search scores by token overlap
// between the query and the stored value text; it is meant for tests and
// single-binary deployments, not semantic recall.
type InMemory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	order  []string
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{values: make(map[string]json.RawMessage)}
}

// Put stores value under key.
func (s *InMemory) Put(_ context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return memory.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

// Get retrieves the value for key.
func (s *InMemory) Get(_ context.Context, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, memory.ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return append(json.RawMessage(nil), v...), nil
}

// Search ranks stored values by token overlap with query.
func (s *InMemory) Search(_ context.Context, query string, topK int) ([]memory.Scored, error) {
	if topK <= 0 {
		return nil, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []memory.Scored
	for _, key := range s.order {
		value := s.values[key]
		score := overlapScore(terms, string(value))
		if score > 0 {
			scored = append(scored, memory.Scored{
				Key:   key,
				Value: append(json.RawMessage(nil), value...),
				Score: score,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Len reports the number of stored values.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func overlapScore(terms []string, value string) float64 {
	haystack := strings.ToLower(value)
	matched := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

var _ memory.Store = (*InMemory)(nil)
