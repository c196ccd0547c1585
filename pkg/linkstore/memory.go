// Copyright 2024-2026 Aiku AI

package linkstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps links in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]string
}

// NewMemoryStore creates a store seeded with a copy of links.
func NewMemoryStore(links map[string]string) *MemoryStore {
	s := &MemoryStore{links: maps.Clone(links)}
	if s.links == nil {
		s.links = make(map[string]string)
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.links), nil
}

func (s *MemoryStore) Save(ctx context.Context, links map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = maps.Clone(links)
	if s.links == nil {
		s.links = make(map[string]string)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
