package driven

import (
	"context"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
)

// MetadataStore is the durable, append-biased registry of every document
// version and every chunk ever produced. Versions are never erased; they
// move through the lifecycle states instead.
//
// Backed by SQLite.
type MetadataStore interface {
	// SaveVersion publishes one document version: it writes the version
	// (status ACTIVE) with its chunk rows and demotes any other ACTIVE
	// version of the same doc_id to SUPERSEDED (recording the successor,
	// deactivating its chunks) in a single transaction. A reader never
	// observes two ACTIVE versions of one doc_id, or none where one
	// existed. Saving the same (doc_id, version) again upserts, which
	// makes the per-document update retryable after a partial failure.
	SaveVersion(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// GetVersion retrieves one document version.
	GetVersion(ctx context.Context, docID string, version int) (*domain.Document, error)

	// GetActiveVersion retrieves the ACTIVE version for a doc_id, or
	// ErrNotFound when none is active.
	GetActiveVersion(ctx context.Context, docID string) (*domain.Document, error)

	// ListActive returns the ACTIVE version of every document.
	ListActive(ctx context.Context) ([]domain.Document, error)

	// ListVersions returns every version of one document, oldest first.
	ListVersions(ctx context.Context, docID string) ([]domain.Document, error)

	// MarkStatus moves a version to the given status (DEPRECATED or
	// ARCHIVED) and deactivates its chunk rows. Superseding happens in
	// SaveVersion, never through this method.
	MarkStatus(ctx context.Context, docID string, version int, status domain.DocStatus) error

	// ArchiveBefore moves SUPERSEDED and DEPRECATED versions whose last
	// update is older than the cutoff to ARCHIVED. Returns the count.
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)

	// GetChunk retrieves one chunk by its deterministic identity.
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)

	// GetChunks retrieves the chunks of one document version, in
	// position order.
	GetChunks(ctx context.Context, docID string, version int) ([]domain.Chunk, error)

	// ActiveChunkIDs returns the identities of every active chunk.
	// Used by the health check against the vector index.
	ActiveChunkIDs(ctx context.Context) ([]string, error)
}
