package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagememory "github.com/quillon/coachkb/internal/adapters/driven/storage/memory"
	vectormemory "github.com/quillon/coachkb/internal/adapters/driven/vectorindex/memory"
	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

func TestCheckConsistency_Consistent(t *testing.T) {
	ctx := context.Background()
	metadata := storagememory.NewMetadataStore()
	index := vectormemory.NewIndex()

	doc := &domain.Document{DocID: "POL-001", Version: 1, DocType: domain.DocTypePolicy, Title: "T"}
	chunks := []domain.Chunk{
		{ID: "c1", DocID: "POL-001", Version: 1, Content: "one"},
		{ID: "c2", DocID: "POL-001", Version: 1, Position: 1, Content: "two"},
	}
	require.NoError(t, metadata.SaveVersion(ctx, doc, chunks))
	require.NoError(t, index.Upsert(ctx, []driven.VectorEntry{
		{ChunkID: "c1", Vector: []float32{1}, Active: true},
		{ChunkID: "c2", Vector: []float32{1}, Active: true},
	}))

	report, err := NewHealthService(metadata, index).CheckConsistency(ctx)
	require.NoError(t, err)

	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.IndexCount)
	assert.Equal(t, 2, report.ActiveChunkCount)
}

func TestCheckConsistency_DriftDetected(t *testing.T) {
	ctx := context.Background()
	metadata := storagememory.NewMetadataStore()
	index := vectormemory.NewIndex()

	doc := &domain.Document{DocID: "POL-001", Version: 1, DocType: domain.DocTypePolicy, Title: "T"}
	chunks := []domain.Chunk{
		{ID: "c1", DocID: "POL-001", Version: 1, Content: "one"},
		{ID: "c2", DocID: "POL-001", Version: 1, Position: 1, Content: "two"},
	}
	require.NoError(t, metadata.SaveVersion(ctx, doc, chunks))

	// c2 never made it into the index; c9 is a leftover from a failed
	// deletion.
	require.NoError(t, index.Upsert(ctx, []driven.VectorEntry{
		{ChunkID: "c1", Vector: []float32{1}, Active: true},
		{ChunkID: "c9", Vector: []float32{1}, Active: true},
	}))

	report, err := NewHealthService(metadata, index).CheckConsistency(ctx)
	require.NoError(t, err)

	assert.False(t, report.Consistent())
	assert.Equal(t, []string{"c2"}, report.MissingFromIndex)
	assert.Equal(t, []string{"c9"}, report.OrphanedInIndex)
}
