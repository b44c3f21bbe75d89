package memory

import (
	"context"
	"sync"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// RetrievalLogStore is an in-memory driven.RetrievalLogStore.
type RetrievalLogStore struct {
	mu      sync.RWMutex
	entries []domain.RetrievalLogEntry
}

var _ driven.RetrievalLogStore = (*RetrievalLogStore)(nil)

// NewRetrievalLogStore creates an empty in-memory retrieval log.
func NewRetrievalLogStore() *RetrievalLogStore {
	return &RetrievalLogStore{}
}

// Append records one retrieval.
func (s *RetrievalLogStore) Append(_ context.Context, entry *domain.RetrievalLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// GetByCorrelationID returns all entries for a correlation id in append
// order.
func (s *RetrievalLogStore) GetByCorrelationID(_ context.Context, correlationID string) ([]domain.RetrievalLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.RetrievalLogEntry
	for _, entry := range s.entries {
		if entry.CorrelationID == correlationID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// All returns every entry in append order. Test helper.
func (s *RetrievalLogStore) All() []domain.RetrievalLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RetrievalLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
