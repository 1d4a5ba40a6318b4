package challenge

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending challenges in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put stores the record under id.
func (s *MemoryStore) Put(_ context.Context, id string, record Record, _ time.Duration) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	s.records[id] = record
	s.mu.Unlock()
	return nil
}

// Take removes and returns the record for id. Expired records are dropped
// and reported as missing.
func (s *MemoryStore) Take(_ context.Context, id string, now time.Time) (Record, bool, error) {
	if id == "" {
		return Record{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, false, nil
	}
	delete(s.records, id)
	if !record.ExpiresAt.After(now) {
		return Record{}, false, nil
	}
	return record, true, nil
}

// Sweep drops every record that expired before now.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if !record.ExpiresAt.After(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}
