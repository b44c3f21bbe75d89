package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// MetadataStore is an in-memory driven.MetadataStore.
type MetadataStore struct {
	mu     sync.RWMutex
	docs   map[domain.VersionRef]domain.Document
	chunks map[string]domain.Chunk
}

var _ driven.MetadataStore = (*MetadataStore)(nil)

// NewMetadataStore creates an empty in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		docs:   make(map[domain.VersionRef]domain.Document),
		chunks: make(map[string]domain.Chunk),
	}
}

// SaveVersion publishes the document version (status ACTIVE), replaces
// its chunk set and demotes any other ACTIVE version of the doc_id to
// SUPERSEDED under the same lock, mirroring the sqlite transaction.
func (s *MetadataStore) SaveVersion(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	saved := *doc
	saved.Status = domain.StatusActive
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now

	for ref, other := range s.docs {
		if ref.DocID != doc.DocID || ref.Version == doc.Version || other.Status != domain.StatusActive {
			continue
		}
		successor := saved.Ref()
		other.Status = domain.StatusSuperseded
		other.SupersededBy = &successor
		other.UpdatedAt = now
		s.docs[ref] = other
		for id, chunk := range s.chunks {
			if chunk.DocID == doc.DocID && chunk.Version == ref.Version {
				chunk.IsActive = false
				s.chunks[id] = chunk
			}
		}
	}
	s.docs[saved.Ref()] = saved

	for id, chunk := range s.chunks {
		if chunk.DocID == doc.DocID && chunk.Version == doc.Version {
			delete(s.chunks, id)
		}
	}
	for _, chunk := range chunks {
		chunk.IsActive = true
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// GetVersion retrieves one document version.
func (s *MetadataStore) GetVersion(_ context.Context, docID string, version int) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[domain.VersionRef{DocID: docID, Version: version}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetActiveVersion retrieves the ACTIVE version for a doc_id.
func (s *MetadataStore) GetActiveVersion(_ context.Context, docID string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Document
	for ref, doc := range s.docs {
		if ref.DocID != docID || doc.Status != domain.StatusActive {
			continue
		}
		if found == nil || doc.Version > found.Version {
			d := doc
			found = &d
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

// ListActive returns the ACTIVE version of every document, sorted by
// doc_id for reproducibility.
func (s *MetadataStore) ListActive(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []domain.Document
	for _, doc := range s.docs {
		if doc.Status == domain.StatusActive {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs, nil
}

// ListVersions returns every version of one document, oldest first.
func (s *MetadataStore) ListVersions(_ context.Context, docID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []domain.Document
	for ref, doc := range s.docs {
		if ref.DocID == docID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Version < docs[j].Version })
	return docs, nil
}

// MarkStatus moves a version to the given status and deactivates its
// chunks.
func (s *MetadataStore) MarkStatus(_ context.Context, docID string, version int, status domain.DocStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := domain.VersionRef{DocID: docID, Version: version}
	doc, ok := s.docs[ref]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	s.docs[ref] = doc

	for id, chunk := range s.chunks {
		if chunk.DocID == docID && chunk.Version == version {
			chunk.IsActive = false
			s.chunks[id] = chunk
		}
	}
	return nil
}

// ArchiveBefore moves stale SUPERSEDED and DEPRECATED versions to
// ARCHIVED.
func (s *MetadataStore) ArchiveBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for ref, doc := range s.docs {
		if doc.Status != domain.StatusSuperseded && doc.Status != domain.StatusDeprecated {
			continue
		}
		if !doc.UpdatedAt.Before(cutoff) {
			continue
		}
		doc.Status = domain.StatusArchived
		doc.UpdatedAt = time.Now().UTC()
		s.docs[ref] = doc
		count++
	}
	return count, nil
}

// GetChunk retrieves one chunk by its identity.
func (s *MetadataStore) GetChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chunk, nil
}

// GetChunks retrieves the chunks of one document version in position
// order.
func (s *MetadataStore) GetChunks(_ context.Context, docID string, version int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []domain.Chunk
	for _, chunk := range s.chunks {
		if chunk.DocID == docID && chunk.Version == version {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

// ActiveChunkIDs returns the identities of every active chunk, sorted.
func (s *MetadataStore) ActiveChunkIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, chunk := range s.chunks {
		if chunk.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
