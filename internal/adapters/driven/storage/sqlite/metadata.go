package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

// documentColumns is the column list shared by every document query.
const documentColumns = `doc_id, version, status, doc_type, title,
	business_lines, queues, regions, checksum, raw_content,
	superseded_by, source_path, source_modified, created_at, updated_at`

// SaveVersion publishes one document version: it writes the version
// (status ACTIVE) with its chunks and demotes any other ACTIVE version of
// the same doc_id to SUPERSEDED, all in a single transaction, so no
// reader ever observes two ACTIVE versions or none. Re-saving the same
// (doc_id, version) upserts, so a sync retry after a partial failure
// converges instead of erroring.
func (s *metadataStore) SaveVersion(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	lines, queues, regions, err := marshalScope(doc.Scope)
	if err != nil {
		return fmt.Errorf("marshalling scope: %w", err)
	}

	now := time.Now().UTC()
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Demote before inserting, so the unique ACTIVE index holds at every
	// statement boundary. Re-saving the active version itself demotes
	// nothing.
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, superseded_by = ?, updated_at = ?
		WHERE doc_id = ? AND status = ? AND version != ?`,
		string(domain.StatusSuperseded), doc.Ref().String(), formatTime(now),
		doc.DocID, string(domain.StatusActive), doc.Version)
	if err != nil {
		return fmt.Errorf("demoting previous version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE chunks SET is_active = 0 WHERE doc_id = ? AND version != ?",
		doc.DocID, doc.Version); err != nil {
		return fmt.Errorf("deactivating previous chunks: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (doc_id, version, status, doc_type, title,
			business_lines, queues, regions, checksum, raw_content,
			superseded_by, source_path, source_modified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, version) DO UPDATE SET
			status = excluded.status,
			doc_type = excluded.doc_type,
			title = excluded.title,
			business_lines = excluded.business_lines,
			queues = excluded.queues,
			regions = excluded.regions,
			checksum = excluded.checksum,
			raw_content = excluded.raw_content,
			superseded_by = excluded.superseded_by,
			source_path = excluded.source_path,
			source_modified = excluded.source_modified,
			updated_at = excluded.updated_at
	`, doc.DocID, doc.Version, string(domain.StatusActive), string(doc.DocType), doc.Title,
		lines, queues, regions, doc.Checksum, doc.RawContent,
		nullString(formatVersionRef(doc.SupersededBy)), nullString(doc.SourcePath),
		formatTime(doc.SourceModified), formatTime(createdAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	// Replace the chunk set for this version wholesale. Deterministic
	// chunk ids mean unchanged sections upsert onto themselves.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE doc_id = ? AND version = ?", doc.DocID, doc.Version); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, doc_id, version, section_path, position,
			content, token_count, embedding_ref, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			version = excluded.version,
			section_path = excluded.section_path,
			position = excluded.position,
			content = excluded.content,
			token_count = excluded.token_count,
			embedding_ref = excluded.embedding_ref,
			is_active = excluded.is_active
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocID, chunk.Version,
			chunk.SectionPath, chunk.Position, chunk.Content, chunk.TokenCount,
			nullString(chunk.EmbeddingRef), boolToInt(true)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetVersion retrieves one document version.
func (s *metadataStore) GetVersion(ctx context.Context, docID string, version int) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE doc_id = ? AND version = ?",
		docID, version)
	return scanDocument(row)
}

// GetActiveVersion retrieves the ACTIVE version for a doc_id. The unique
// ACTIVE index guarantees at most one row.
func (s *metadataStore) GetActiveVersion(ctx context.Context, docID string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE doc_id = ? AND status = ?",
		docID, string(domain.StatusActive))
	return scanDocument(row)
}

// ListActive returns the ACTIVE version of every document.
func (s *metadataStore) ListActive(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE status = ? ORDER BY doc_id",
		string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying active documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListVersions returns every version of one document, oldest first.
func (s *metadataStore) ListVersions(ctx context.Context, docID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE doc_id = ? ORDER BY version",
		docID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// MarkStatus moves a version to the given status (DEPRECATED or
// ARCHIVED) and deactivates its chunks. Idempotent: re-marking an
// already transitioned version succeeds.
func (s *metadataStore) MarkStatus(ctx context.Context, docID string, version int, status domain.DocStatus) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?
		WHERE doc_id = ? AND version = ?`,
		string(status), formatTime(time.Now().UTC()), docID, version)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE chunks SET is_active = 0 WHERE doc_id = ? AND version = ?",
		docID, version); err != nil {
		return fmt.Errorf("deactivating chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ArchiveBefore moves stale SUPERSEDED and DEPRECATED versions to
// ARCHIVED. The lexicographic comparison is sound because timestamps are
// stored as RFC3339 UTC.
func (s *metadataStore) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?
		WHERE status IN (?, ?) AND updated_at < ?`,
		string(domain.StatusArchived), formatTime(time.Now().UTC()),
		string(domain.StatusSuperseded), string(domain.StatusDeprecated),
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("archiving documents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	}
	return int(affected), nil
}

// GetChunk retrieves one chunk by its deterministic identity.
func (s *metadataStore) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT chunk_id, doc_id, version, section_path, position, content,
			token_count, embedding_ref, is_active
		FROM chunks WHERE chunk_id = ?`, chunkID)
	return scanChunk(row)
}

// GetChunks retrieves the chunks of one document version in position order.
func (s *metadataStore) GetChunks(ctx context.Context, docID string, version int) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, version, section_path, position, content,
			token_count, embedding_ref, is_active
		FROM chunks WHERE doc_id = ? AND version = ? ORDER BY position`,
		docID, version)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ActiveChunkIDs returns the identities of every active chunk.
func (s *metadataStore) ActiveChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT chunk_id FROM chunks WHERE is_active = 1 ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("querying active chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}
	return ids, nil
}

// scanner is the shared subset of sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var status, docType string
	var lines, queues, regions string
	var supersededBy, sourcePath, sourceModified, createdAt, updatedAt sql.NullString
	if err := row.Scan(&doc.DocID, &doc.Version, &status, &docType, &doc.Title,
		&lines, &queues, &regions, &doc.Checksum, &doc.RawContent,
		&supersededBy, &sourcePath, &sourceModified, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocStatus(status)
	doc.DocType = domain.DocType(docType)
	scope, err := unmarshalScope(lines, queues, regions)
	if err != nil {
		return nil, err
	}
	doc.Scope = scope

	if supersededBy.Valid {
		ref, err := parseVersionRef(supersededBy.String)
		if err != nil {
			return nil, err
		}
		doc.SupersededBy = ref
	}
	doc.SourcePath = sourcePath.String
	doc.SourceModified = parseNullableTime(sourceModified)
	doc.CreatedAt = parseNullableTime(createdAt)
	doc.UpdatedAt = parseNullableTime(updatedAt)

	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingRef sql.NullString
	var isActive int
	if err := row.Scan(&chunk.ID, &chunk.DocID, &chunk.Version, &chunk.SectionPath,
		&chunk.Position, &chunk.Content, &chunk.TokenCount, &embeddingRef, &isActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.EmbeddingRef = embeddingRef.String
	chunk.IsActive = isActive != 0
	return &chunk, nil
}

// marshalScope encodes the three scope dimensions as JSON arrays.
func marshalScope(scope domain.ScopeFilter) (lines, queues, regions string, err error) {
	encode := func(values []string) (string, error) {
		if values == nil {
			values = []string{}
		}
		b, err := json.Marshal(values)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if lines, err = encode(scope.BusinessLines); err != nil {
		return "", "", "", fmt.Errorf("marshalling business lines: %w", err)
	}
	if queues, err = encode(scope.Queues); err != nil {
		return "", "", "", fmt.Errorf("marshalling queues: %w", err)
	}
	if regions, err = encode(scope.Regions); err != nil {
		return "", "", "", fmt.Errorf("marshalling regions: %w", err)
	}
	return lines, queues, regions, nil
}

func unmarshalScope(lines, queues, regions string) (domain.ScopeFilter, error) {
	var scope domain.ScopeFilter
	if err := json.Unmarshal([]byte(lines), &scope.BusinessLines); err != nil {
		return scope, fmt.Errorf("unmarshaling business lines: %w", err)
	}
	if err := json.Unmarshal([]byte(queues), &scope.Queues); err != nil {
		return scope, fmt.Errorf("unmarshaling queues: %w", err)
	}
	if err := json.Unmarshal([]byte(regions), &scope.Regions); err != nil {
		return scope, fmt.Errorf("unmarshaling regions: %w", err)
	}
	return scope, nil
}

// formatVersionRef encodes a version reference as "DOC-ID:v3".
func formatVersionRef(ref *domain.VersionRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}

// parseVersionRef decodes the "DOC-ID:v3" encoding.
func parseVersionRef(s string) (*domain.VersionRef, error) {
	idx := strings.LastIndex(s, ":v")
	if idx < 1 {
		return nil, fmt.Errorf("malformed version reference %q", s)
	}
	version, err := strconv.Atoi(s[idx+2:])
	if err != nil {
		return nil, fmt.Errorf("malformed version reference %q: %w", s, err)
	}
	return &domain.VersionRef{DocID: s[:idx], Version: version}, nil
}
