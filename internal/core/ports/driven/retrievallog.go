package driven

import (
	"context"

	"github.com/quillon/coachkb/internal/core/domain"
)

// RetrievalLogStore persists the immutable retrieval audit log.
// Append-only: entries are never mutated or deleted.
type RetrievalLogStore interface {
	// Append records one retrieval.
	Append(ctx context.Context, entry *domain.RetrievalLogEntry) error

	// GetByCorrelationID returns all entries for a correlation id,
	// oldest first. Re-querying a known id reproduces the exact result
	// set served to the caller.
	GetByCorrelationID(ctx context.Context, correlationID string) ([]domain.RetrievalLogEntry, error)
}
