package driving

import "context"

// ConsistencyReport is the result of comparing the vector index against
// the metadata store's active chunk set.
type ConsistencyReport struct {
	// IndexCount is the number of identities in the vector index.
	IndexCount int

	// ActiveChunkCount is the number of active chunk rows.
	ActiveChunkCount int

	// MissingFromIndex lists active chunks absent from the index.
	MissingFromIndex []string

	// OrphanedInIndex lists index entries with no active chunk row.
	OrphanedInIndex []string
}

// Consistent reports whether the two stores agree exactly.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.MissingFromIndex) == 0 && len(r.OrphanedInIndex) == 0
}

// HealthService detects index/metadata drift left by partially failed
// sync runs. Inconsistency is reported, never auto-healed; recovery is an
// operator-invoked full refresh.
type HealthService interface {
	CheckConsistency(ctx context.Context) (*ConsistencyReport, error)
}
