// Package memory provides an in-process vector index with exhaustive
// cosine-similarity search. Used in tests and for small corpora where
// running a Qdrant server is not worth the setup.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index holds entries in a map keyed by chunk identity.
type Index struct {
	mu      sync.RWMutex
	entries map[string]driven.VectorEntry
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]driven.VectorEntry)}
}

// Upsert inserts or replaces entries under their chunk identities.
func (x *Index) Upsert(_ context.Context, entries []driven.VectorEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, entry := range entries {
		x.entries[entry.ChunkID] = entry
	}
	return nil
}

// Delete removes entries by chunk identity.
func (x *Index) Delete(_ context.Context, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range chunkIDs {
		delete(x.entries, id)
	}
	return nil
}

// Search scans every entry, scores the ones that pass the filter and
// returns the top k by cosine similarity.
func (x *Index) Search(_ context.Context, query []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []driven.VectorHit
	for id, entry := range x.entries {
		if !matches(entry, filter) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    id,
			Similarity: cosineSimilarity(query, entry.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// ListIDs returns every chunk identity present, sorted.
func (x *Index) ListIDs(_ context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

func matches(entry driven.VectorEntry, filter driven.VectorFilter) bool {
	if filter.ActiveOnly && !entry.Active {
		return false
	}
	if !entry.Scope.Matches(filter.Scope) {
		return false
	}
	if len(filter.DocTypes) > 0 {
		found := false
		for _, t := range filter.DocTypes {
			if t == entry.DocType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
