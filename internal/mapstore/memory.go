package mapstore

import (
	"context"
	"maps"
	"sync"

	"github.com/halcyonhealth/phiredact/internal/redact"
)

// MemoryStore is an in-memory [Store]. Used when no mapstore path is
// configured and in tests. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[string]redact.Mapping
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty [MemoryStore].
func NewMemory() *MemoryStore {
	return &MemoryStore{mappings: make(map[string]redact.Mapping)}
}

// Put stores a copy of mapping under invocationID.
func (s *MemoryStore) Put(ctx context.Context, invocationID string, mapping redact.Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[invocationID] = maps.Clone(mapping)
	return nil
}

// Get retrieves a copy of the mapping stored under invocationID.
func (s *MemoryStore) Get(ctx context.Context, invocationID string) (redact.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[invocationID]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(m), nil
}

// Delete removes the mapping stored under invocationID, if any.
func (s *MemoryStore) Delete(ctx context.Context, invocationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, invocationID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
