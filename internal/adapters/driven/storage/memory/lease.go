package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// LeaseStore is an in-memory driven.LeaseStore.
type LeaseStore struct {
	mu      sync.Mutex
	current *domain.SyncLease
}

var _ driven.LeaseStore = (*LeaseStore)(nil)

// NewLeaseStore creates an in-memory lease store with no lease held.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{}
}

// Acquire takes the corpus lease, stealing an expired one.
func (s *LeaseStore) Acquire(_ context.Context, owner string, ttl time.Duration) (*domain.SyncLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.current != nil && !s.current.Expired(now) {
		return nil, domain.ErrSyncInProgress
	}

	lease := &domain.SyncLease{
		LeaseID:    uuid.New().String(),
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	s.current = lease
	return lease, nil
}

// Release frees the lease if the id still matches.
func (s *LeaseStore) Release(_ context.Context, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.LeaseID == leaseID {
		s.current = nil
	}
	return nil
}
