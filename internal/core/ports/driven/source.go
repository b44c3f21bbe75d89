package driven

import (
	"context"

	"github.com/quillon/coachkb/internal/core/domain"
)

// DocumentSource is an enumerable collection of raw documents, each
// retrievable by path and reporting a last-modified marker.
type DocumentSource interface {
	// List enumerates the source's documents.
	List(ctx context.Context) ([]domain.SourceFile, error)

	// Read returns the raw bytes of one document.
	Read(ctx context.Context, path string) ([]byte, error)
}

// WatchableSource is implemented by sources that can report changes.
type WatchableSource interface {
	DocumentSource

	// Watch emits a signal whenever the source content changes, until
	// the context is cancelled. Events are debounced by the adapter.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
