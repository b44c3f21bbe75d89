package driving

import (
	"context"

	"github.com/quillon/coachkb/internal/core/domain"
)

// RetrievalService serves filtered, ranked retrieval queries used to
// ground coaching output in cited policy text.
type RetrievalService interface {
	// Retrieve embeds the query, runs a filtered nearest-neighbour
	// search over active chunks, hydrates content from the metadata
	// store, and records exactly one audit entry for the served result.
	// Subsystem failures degrade to an empty GroundingUnavailable
	// result rather than an error.
	Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.RetrievalResult, error)
}

// AuditService replays logged retrievals.
type AuditService interface {
	// Lookup returns the audit entries recorded for a correlation id.
	Lookup(ctx context.Context, correlationID string) ([]domain.RetrievalLogEntry, error)
}
