package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

func seedIndex(t *testing.T) *Index {
	t.Helper()
	index := NewIndex()
	err := index.Upsert(context.Background(), []driven.VectorEntry{
		{
			ChunkID: "c-collections", Vector: []float32{1, 0, 0},
			DocID: "POL-001", Version: 2, DocType: domain.DocTypePolicy,
			Scope:  domain.ScopeFilter{BusinessLines: []string{"COLLECTIONS"}},
			Active: true,
		},
		{
			ChunkID: "c-retention", Vector: []float32{0, 1, 0},
			DocID: "POL-002", Version: 1, DocType: domain.DocTypePolicy,
			Scope:  domain.ScopeFilter{BusinessLines: []string{"RETENTION"}},
			Active: true,
		},
		{
			ChunkID: "c-coaching", Vector: []float32{0.8, 0.6, 0},
			DocID: "COACH-01", Version: 1, DocType: domain.DocTypeCoaching,
			Active: true,
		},
		{
			ChunkID: "c-inactive", Vector: []float32{1, 0, 0},
			DocID: "POL-001", Version: 1, DocType: domain.DocTypePolicy,
			Active: false,
		},
	})
	require.NoError(t, err)
	return index
}

func TestSearch_RankedByCosineSimilarity(t *testing.T) {
	index := seedIndex(t)

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 10, driven.VectorFilter{
		ActiveOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "c-collections", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "c-coaching", hits[1].ChunkID)
	// float32 seed values carry ~1e-8 of conversion error.
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)
	assert.Equal(t, "c-retention", hits[2].ChunkID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-9)
}

func TestSearch_ActiveOnly(t *testing.T) {
	index := seedIndex(t)

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 10, driven.VectorFilter{
		ActiveOnly: true,
	})
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "c-inactive", hit.ChunkID)
	}
}

func TestSearch_ScopeFilter(t *testing.T) {
	index := seedIndex(t)

	// A RETENTION caller sees RETENTION-scoped and unscoped entries, never
	// the COLLECTIONS one.
	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 10, driven.VectorFilter{
		ActiveOnly: true,
		Scope:      domain.ScopeFilter{BusinessLines: []string{"RETENTION"}},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.NotEqual(t, "c-collections", hit.ChunkID)
	}
}

func TestSearch_DocTypeFilter(t *testing.T) {
	index := seedIndex(t)

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 10, driven.VectorFilter{
		ActiveOnly: true,
		DocTypes:   []domain.DocType{domain.DocTypeCoaching},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-coaching", hits[0].ChunkID)
}

func TestSearch_TopKTruncation(t *testing.T) {
	index := seedIndex(t)

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 1, driven.VectorFilter{
		ActiveOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-collections", hits[0].ChunkID)
}

func TestSearch_TiesBreakOnChunkID(t *testing.T) {
	index := NewIndex()
	require.NoError(t, index.Upsert(context.Background(), []driven.VectorEntry{
		{ChunkID: "b", Vector: []float32{1, 0}, Active: true},
		{ChunkID: "a", Vector: []float32{1, 0}, Active: true},
	}))

	hits, err := index.Search(context.Background(), []float32{1, 0}, 10, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "b", hits[1].ChunkID)
}

func TestUpsert_ReplacesEntry(t *testing.T) {
	ctx := context.Background()
	index := NewIndex()

	require.NoError(t, index.Upsert(ctx, []driven.VectorEntry{
		{ChunkID: "c1", Vector: []float32{1, 0}, Active: true},
	}))
	require.NoError(t, index.Upsert(ctx, []driven.VectorEntry{
		{ChunkID: "c1", Vector: []float32{0, 1}, Active: true},
	}))

	hits, err := index.Search(ctx, []float32{0, 1}, 1, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)

	ids, err := index.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	index := seedIndex(t)

	require.NoError(t, index.Delete(ctx, []string{"c-collections", "c-missing"}))

	ids, err := index.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-coaching", "c-inactive", "c-retention"}, ids)
}

func TestCosineSimilarity_DegenerateVectors(t *testing.T) {
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "mismatched lengths")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector")
	assert.Zero(t, cosineSimilarity(nil, nil), "empty vectors")
}
