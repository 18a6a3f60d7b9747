package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory. Used in tests and when no durable
// store is configured.
type MemoryStore struct {
	mu      sync.Mutex
	chain   chain
	records []Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := s.chain.seal(r)
	if err != nil {
		return Record{}, err
	}
	s.records = append(s.records, sealed)
	s.chain.advance(sealed)
	return sealed, nil
}

func (s *MemoryStore) Read(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), nil
}
