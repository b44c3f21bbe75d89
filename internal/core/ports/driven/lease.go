package driven

import (
	"context"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
)

// LeaseStore is the durable mutual-exclusion mechanism for sync runs.
// At most one unexpired lease exists at a time for the corpus.
type LeaseStore interface {
	// Acquire takes the corpus lease for the given owner and TTL.
	// Returns ErrSyncInProgress when an unexpired lease is held by
	// someone else. An expired lease is stolen silently.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (*domain.SyncLease, error)

	// Release frees the lease. Releasing an already-stolen or unknown
	// lease id is not an error.
	Release(ctx context.Context, leaseID string) error
}
