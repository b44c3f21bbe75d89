package domain

import "time"

// SyncLease is the durable mutual-exclusion token for sync runs. The lease
// lives in the metadata store rather than an in-process mutex because sync
// may run as a separate scheduled process from retrieval serving.
type SyncLease struct {
	// LeaseID uniquely identifies this acquisition.
	LeaseID string

	// Owner describes the holder, e.g. "host-17/pid-4242".
	Owner string

	// AcquiredAt is when the lease was taken.
	AcquiredAt time.Time

	// ExpiresAt bounds the hold. An expired lease may be stolen, which
	// covers crashed sync processes that never released.
	ExpiresAt time.Time
}

// Expired reports whether the lease has passed its expiry at the given time.
func (l *SyncLease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
