package repository

import (
	"context"
	"sync"

	"snake-market/internal/model"
)

// MemoryStore keeps records in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.ScoreRecord
	saves   int
}

// NewMemoryStore creates a MemoryStore seeded with records.
func NewMemoryStore(records ...model.ScoreRecord) *MemoryStore {
	s := &MemoryStore{records: make(map[string]model.ScoreRecord, len(records))}
	for _, r := range records {
		s.records[r.UserID] = r
	}
	return s
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) ([]model.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScoreRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, records []model.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]model.ScoreRecord, len(records))
	for _, r := range records {
		s.records[r.UserID] = r
	}
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
