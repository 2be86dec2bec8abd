package store

import (
	"context"
	"sync"
)

// InMem is a map-backed Store for tests and single-node deployments.
type InMem struct {
	mu   sync.RWMutex
	data map[Kind]map[string][]byte
}

// NewInMem returns an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{data: make(map[Kind]map[string][]byte)}
}

// Put implements Store. The bytes are copied so later caller mutations do
// not leak into the store.
func (s *InMem) Put(_ context.Context, kind Kind, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.data[kind]
	if bucket == nil {
		bucket = make(map[string][]byte)
		s.data[kind] = bucket
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	bucket[id] = cp
	return nil
}

// Get implements Store.
func (s *InMem) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete implements Store.
func (s *InMem) Delete(_ context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[kind], id)
	return nil
}

// List implements Store.
func (s *InMem) List(_ context.Context, kind Kind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data[kind]))
	for id := range s.data[kind] {
		ids = append(ids, id)
	}
	return ids, nil
}
