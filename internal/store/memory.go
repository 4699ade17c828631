package store

import (
	"context"
	"sync"

	"jute-fleet-backend/internal/model"
)

// MemoryStore keeps the snapshot in process memory. State does not survive a
// restart.
type MemoryStore struct {
	mu    sync.Mutex
	snap  model.Snapshot
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}
