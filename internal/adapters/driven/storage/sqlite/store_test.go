package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/coachkb/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(docID string, version int) *domain.Document {
	return &domain.Document{
		DocID:   docID,
		Version: version,
		DocType: domain.DocTypePolicy,
		Title:   "Refund Policy",
		Scope: domain.ScopeFilter{
			BusinessLines: []string{"COLLECTIONS"},
			Queues:        []string{"INBOUND-TIER1"},
		},
		Checksum:       "abc123",
		RawContent:     "Refunds over 500 EUR require approval.",
		SourcePath:     "policies/refunds.md",
		SourceModified: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testChunks(docID string, version int) []domain.Chunk {
	return []domain.Chunk{
		{
			ID: docID + "-c1", DocID: docID, Version: version,
			SectionPath: "01:Refunds", Position: 0,
			Content: "Refunds over 500 EUR require approval.", TokenCount: 8,
			EmbeddingRef: docID + "-c1",
		},
		{
			ID: docID + "-c2", DocID: docID, Version: version,
			SectionPath: "02:Escalation", Position: 1,
			Content: "Escalate disputed refunds to a supervisor.", TokenCount: 8,
			EmbeddingRef: docID + "-c2",
		},
	}
}

func TestMetadataStore_SaveAndGetVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	doc := testDocument("POL-001", 1)
	require.NoError(t, store.SaveVersion(ctx, doc, testChunks("POL-001", 1)))

	got, err := store.GetVersion(ctx, "POL-001", 1)
	require.NoError(t, err)
	assert.Equal(t, "POL-001", got.DocID)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, domain.StatusActive, got.Status, "saving publishes the version")
	assert.Equal(t, domain.DocTypePolicy, got.DocType)
	assert.Equal(t, []string{"COLLECTIONS"}, got.Scope.BusinessLines)
	assert.Equal(t, []string{"INBOUND-TIER1"}, got.Scope.Queues)
	assert.Empty(t, got.Scope.Regions)
	assert.Equal(t, doc.RawContent, got.RawContent)
	assert.Equal(t, doc.SourceModified, got.SourceModified)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetVersion(ctx, "POL-001", 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetadataStore_SaveVersionIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	doc := testDocument("POL-001", 1)
	require.NoError(t, store.SaveVersion(ctx, doc, testChunks("POL-001", 1)))
	require.NoError(t, store.SaveVersion(ctx, doc, testChunks("POL-001", 1)))

	chunks, err := store.GetChunks(ctx, "POL-001", 1)
	require.NoError(t, err)
	assert.Len(t, chunks, 2, "re-saving must not duplicate chunk rows")
}

func TestMetadataStore_ActiveLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-001", 1), testChunks("POL-001", 1)))

	v2 := testDocument("POL-001", 2)
	v2.Checksum = "def456"
	v2Chunks := []domain.Chunk{{
		ID: "POL-001-v2-c1", DocID: "POL-001", Version: 2,
		SectionPath: "01:Refunds", Position: 0, Content: "New wording.", TokenCount: 3,
	}}
	require.NoError(t, store.SaveVersion(ctx, v2, v2Chunks))

	active, err := store.GetActiveVersion(ctx, "POL-001")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version, "publishing v2 demotes v1 in the same call")

	versions, err := store.ListVersions(ctx, "POL-001")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, domain.StatusSuperseded, versions[0].Status)
	require.NotNil(t, versions[0].SupersededBy)
	assert.Equal(t, domain.VersionRef{DocID: "POL-001", Version: 2}, *versions[0].SupersededBy)

	// Only v2 chunks stay active.
	ids, err := store.ActiveChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"POL-001-v2-c1"}, ids)

	// Superseded chunks remain readable.
	old, err := store.GetChunk(ctx, "POL-001-c1")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestMetadataStore_ResaveActiveVersionStaysActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	doc := testDocument("POL-001", 1)
	require.NoError(t, store.SaveVersion(ctx, doc, testChunks("POL-001", 1)))
	require.NoError(t, store.SaveVersion(ctx, doc, testChunks("POL-001", 1)))

	active, err := store.GetActiveVersion(ctx, "POL-001")
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)
	assert.Equal(t, domain.StatusActive, active.Status)
	assert.Nil(t, active.SupersededBy, "a version must never supersede itself")

	ids, err := store.ActiveChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"POL-001-c1", "POL-001-c2"}, ids)
}

func TestMetadataStore_ListActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-002", 1), nil))
	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-001", 1), nil))
	require.NoError(t, store.MarkStatus(ctx, "POL-002", 1, domain.StatusDeprecated))

	docs, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "POL-001", docs[0].DocID)
}

func TestMetadataStore_MarkStatusUnknownVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	err := store.MarkStatus(ctx, "POL-404", 1, domain.StatusDeprecated)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetadataStore_ArchiveBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-001", 1), nil))
	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-001", 2), nil))

	// Cutoff in the past archives nothing.
	n, err := store.ArchiveBefore(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Cutoff in the future catches the superseded version but never the
	// active one.
	n, err = store.ArchiveBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	versions, err := store.ListVersions(ctx, "POL-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, versions[0].Status)
	assert.Equal(t, domain.StatusActive, versions[1].Status)
}

func TestMetadataStore_GetChunksOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).MetadataStore()

	require.NoError(t, store.SaveVersion(ctx, testDocument("POL-001", 1), testChunks("POL-001", 1)))

	chunks, err := store.GetChunks(ctx, "POL-001", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 1, chunks[1].Position)
	assert.True(t, chunks[0].IsActive)
	assert.Equal(t, "01:Refunds", chunks[0].SectionPath)
}

func TestRetrievalLogStore_AppendAndReplay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).RetrievalLogStore()

	entry := &domain.RetrievalLogEntry{
		LogID:         "log-1",
		CorrelationID: "case-4711",
		Query:         "refund approval threshold",
		Scope:         domain.ScopeFilter{BusinessLines: []string{"COLLECTIONS"}},
		DocTypes:      []domain.DocType{domain.DocTypePolicy},
		Results: []domain.RetrievalLogResult{
			{ChunkID: "c1", Score: 0.91, DocID: "POL-001", Version: 2, SectionPath: "01:Refunds"},
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Append(ctx, entry))

	entries, err := store.GetByCorrelationID(ctx, "case-4711")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.LogID, got.LogID)
	assert.Equal(t, entry.Query, got.Query)
	assert.Equal(t, entry.Scope.BusinessLines, got.Scope.BusinessLines)
	assert.Equal(t, entry.DocTypes, got.DocTypes)
	assert.Equal(t, entry.Results, got.Results)
	assert.Equal(t, entry.CreatedAt, got.CreatedAt)

	missing, err := store.GetByCorrelationID(ctx, "case-0000")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLeaseStore_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).LeaseStore()

	lease, err := store.Acquire(ctx, "host-a/pid-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, lease.LeaseID)
	assert.Equal(t, "host-a/pid-1", lease.Owner)

	_, err = store.Acquire(ctx, "host-b/pid-2", time.Minute)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	require.NoError(t, store.Release(ctx, lease.LeaseID))

	_, err = store.Acquire(ctx, "host-b/pid-2", time.Minute)
	require.NoError(t, err)
}

func TestLeaseStore_ExpiredLeaseStolen(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).LeaseStore()

	stale, err := store.Acquire(ctx, "crashed/pid-9", -time.Second)
	require.NoError(t, err)

	fresh, err := store.Acquire(ctx, "host-b/pid-2", time.Minute)
	require.NoError(t, err, "an expired lease must be stolen, not block forever")
	assert.NotEqual(t, stale.LeaseID, fresh.LeaseID)

	// Releasing the stolen lease id is a no-op, not an error.
	require.NoError(t, store.Release(ctx, stale.LeaseID))

	_, err = store.Acquire(ctx, "host-c/pid-3", time.Minute)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.MetadataStore().SaveVersion(context.Background(), testDocument("POL-001", 1), nil))
	require.NoError(t, first.Close())

	// Reopening runs migrate again against the same file.
	second, err := NewStore(dir)
	require.NoError(t, err)
	defer second.Close()

	doc, err := second.MetadataStore().GetVersion(context.Background(), "POL-001", 1)
	require.NoError(t, err)
	assert.Equal(t, "POL-001", doc.DocID)
}
