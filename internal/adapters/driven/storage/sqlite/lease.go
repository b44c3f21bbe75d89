package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// corpusLease is the single lease name; the corpus is synced as a whole.
const corpusLease = "corpus"

// leaseStore implements driven.LeaseStore.
type leaseStore struct {
	store *Store
}

var _ driven.LeaseStore = (*leaseStore)(nil)

// Acquire takes the corpus lease. An unexpired lease held by anyone else
// fails fast with ErrSyncInProgress; an expired lease is stolen.
func (s *leaseStore) Acquire(ctx context.Context, owner string, ttl time.Duration) (*domain.SyncLease, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	var expiresAt sql.NullString
	row := tx.QueryRowContext(ctx,
		"SELECT expires_at FROM sync_leases WHERE name = ?", corpusLease)
	err = row.Scan(&expiresAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking existing lease: %w", err)
	}
	if err == nil && parseNullableTime(expiresAt).After(now) {
		return nil, domain.ErrSyncInProgress
	}

	lease := &domain.SyncLease{
		LeaseID:    uuid.New().String(),
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_leases (name, lease_id, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			lease_id = excluded.lease_id,
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
	`, corpusLease, lease.LeaseID, lease.Owner,
		formatTime(lease.AcquiredAt), formatTime(lease.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("writing lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return lease, nil
}

// Release frees the lease. A lease id that no longer matches (already
// stolen after expiry) is not an error.
func (s *leaseStore) Release(ctx context.Context, leaseID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM sync_leases WHERE name = ? AND lease_id = ?",
		corpusLease, leaseID)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	return nil
}
