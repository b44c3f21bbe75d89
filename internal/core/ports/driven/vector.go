package driven

import (
	"context"

	"github.com/quillon/coachkb/internal/core/domain"
)

// VectorEntry is one chunk's presence in the vector index: its vector plus
// the filterable tags. Full chunk content lives only in the metadata store
// to bound index size.
type VectorEntry struct {
	// ChunkID is the deterministic chunk identity keying the entry.
	ChunkID string

	// Vector is the embedding.
	Vector []float32

	// Citation fields carried as payload.
	DocID   string
	Version int
	DocType domain.DocType

	// Scope tags for filtered search.
	Scope domain.ScopeFilter

	// Active mirrors the owning document version's ACTIVE status.
	Active bool
}

// VectorFilter restricts a nearest-neighbour search.
type VectorFilter struct {
	// ActiveOnly restricts to chunks of ACTIVE document versions.
	ActiveOnly bool

	// Scope holds required scope tags per dimension.
	Scope domain.ScopeFilter

	// DocTypes restricts to a document-type subset when non-empty.
	DocTypes []domain.DocType
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

// VectorIndex provides filtered semantic similarity search over chunks of
// ACTIVE document versions. Outside of a sync run, the set of identities it
// holds equals exactly the metadata store's active chunk set.
type VectorIndex interface {
	// Upsert inserts or replaces entries under their chunk identities.
	// Idempotent: re-upserting the same identities is a safe retry.
	Upsert(ctx context.Context, entries []VectorEntry) error

	// Delete removes entries by chunk identity. Unknown identities are
	// not an error.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search finds the k nearest neighbours to the query vector that
	// satisfy the filter.
	Search(ctx context.Context, query []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// ListIDs returns every chunk identity present in the index.
	// Used by the health check against the metadata store.
	ListIDs(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}
