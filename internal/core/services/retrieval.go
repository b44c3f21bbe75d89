package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/core/ports/driving"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure RetrievalService implements the interfaces.
var (
	_ driving.RetrievalService = (*RetrievalService)(nil)
	_ driving.AuditService     = (*RetrievalService)(nil)
)

// Default retrieval tuning.
const (
	// DefaultK bounds the result count.
	DefaultK = 8

	// DefaultMinScore is the similarity threshold below which hits are
	// discarded. Fail-closed: no fallback to unfiltered results.
	DefaultMinScore = 0.30

	// DefaultTimeout bounds the whole retrieval call. No retries on
	// this latency-sensitive path; a timeout degrades to an empty
	// GroundingUnavailable result.
	DefaultTimeout = 5 * time.Second

	// overfetchFactor requests extra candidates from the index to
	// survive threshold and hydration filtering.
	overfetchFactor = 2
)

// RetrievalService serves filtered, ranked, audited retrieval queries.
type RetrievalService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	metadata driven.MetadataStore
	auditLog driven.RetrievalLogStore

	k        int
	minScore float64
	timeout  time.Duration
}

// RetrievalOption configures the service.
type RetrievalOption func(*RetrievalService)

// WithDefaultK sets the default result bound.
func WithDefaultK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithMinScore sets the default similarity threshold.
func WithMinScore(score float64) RetrievalOption {
	return func(s *RetrievalService) {
		if score > 0 {
			s.minScore = score
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) RetrievalOption {
	return func(s *RetrievalService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	metadata driven.MetadataStore,
	auditLog driven.RetrievalLogStore,
	opts ...RetrievalOption,
) *RetrievalService {
	s := &RetrievalService{
		embedder: embedder,
		index:    index,
		metadata: metadata,
		auditLog: auditLog,
		k:        DefaultK,
		minScore: DefaultMinScore,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve runs one retrieval call end to end. Subsystem failures return
// a GroundingUnavailable result with a nil error so the coaching consumer
// can proceed ungrounded; a failure to write the audit entry is a hard
// error, since an unaudited result must not be served.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieval")

	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "required"}
	}

	k := opts.K
	if k <= 0 {
		k = s.k
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = s.minScore
	}
	logger.Debug("Query %q, k=%d, min_score=%.2f, correlation=%s", query, k, minScore, correlationID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unavailable := func(stage string, err error) *domain.RetrievalResult {
		logger.Warn("Retrieval degraded at %s: %v", stage, err)
		return &domain.RetrievalResult{
			Status:        domain.GroundingUnavailable,
			CorrelationID: correlationID,
		}
	}

	// Query intent, explicitly. Document intent here would silently
	// degrade accuracy.
	vectors, err := s.embedder.EmbedBatch(ctx, []string{query}, driven.IntentQuery)
	if err != nil {
		return unavailable("embed query", err), nil
	}
	if len(vectors) != 1 {
		return unavailable("embed query", fmt.Errorf("expected 1 vector, got %d", len(vectors))), nil
	}

	hits, err := s.index.Search(ctx, vectors[0], k*overfetchFactor, driven.VectorFilter{
		ActiveOnly: true,
		Scope:      opts.Scope,
		DocTypes:   opts.DocTypes,
	})
	if err != nil {
		return unavailable("vector search", err), nil
	}
	logger.Debug("Index returned %d candidates", len(hits))

	retrieved, err := s.hydrate(ctx, hits, minScore, opts)
	if err != nil {
		return unavailable("hydrate", err), nil
	}

	sort.SliceStable(retrieved, func(i, j int) bool {
		return retrieved[i].Score > retrieved[j].Score
	})
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}

	entry := buildLogEntry(correlationID, query, opts, retrieved)
	if err := s.auditLog.Append(ctx, entry); err != nil {
		logger.Error("Audit append failed, refusing to serve results: %v", err)
		return nil, fmt.Errorf("append retrieval log: %w", err)
	}

	status := domain.GroundingOK
	if len(retrieved) == 0 {
		// Insufficient grounding, not an error. No fallback to
		// unfiltered or lower-threshold results.
		status = domain.GroundingNoMatch
	}
	logger.Info("Retrieval served %d chunks (%s)", len(retrieved), status)

	return &domain.RetrievalResult{
		Status:        status,
		Chunks:        retrieved,
		CorrelationID: correlationID,
	}, nil
}

// hydrate loads full chunk content from the metadata store for hits that
// clear the threshold, re-checking activity and scope. A chunk deleted or
// deactivated by a concurrent sync is skipped, not an error.
func (s *RetrievalService) hydrate(
	ctx context.Context, hits []driven.VectorHit, minScore float64, opts domain.RetrievalOptions,
) ([]domain.RetrievedChunk, error) {
	results := make([]domain.RetrievedChunk, 0, len(hits))
	titles := make(map[domain.VersionRef]*domain.Document)

	for _, hit := range hits {
		if hit.Similarity < minScore {
			continue
		}

		chunk, err := s.metadata.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.ChunkID, err)
		}
		if !chunk.IsActive {
			continue
		}

		ref := domain.VersionRef{DocID: chunk.DocID, Version: chunk.Version}
		doc, ok := titles[ref]
		if !ok {
			doc, err = s.metadata.GetVersion(ctx, chunk.DocID, chunk.Version)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("get document %s: %w", ref, err)
			}
			titles[ref] = doc
		}

		// The index already filtered on scope; re-check against the
		// hydrated document so a stale payload can never leak a chunk
		// outside the caller's scope.
		if !doc.Scope.Matches(opts.Scope) {
			continue
		}

		results = append(results, domain.RetrievedChunk{
			Chunk:    *chunk,
			DocTitle: doc.Title,
			DocType:  doc.DocType,
			Score:    hit.Similarity,
		})
	}

	return results, nil
}

// Lookup replays the audit entries for a correlation id.
func (s *RetrievalService) Lookup(ctx context.Context, correlationID string) ([]domain.RetrievalLogEntry, error) {
	if strings.TrimSpace(correlationID) == "" {
		return nil, &domain.ValidationError{Field: "correlation_id", Reason: "required"}
	}
	entries, err := s.auditLog.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("lookup retrieval log: %w", err)
	}
	return entries, nil
}

// buildLogEntry assembles the immutable audit record for one served call.
func buildLogEntry(
	correlationID, query string, opts domain.RetrievalOptions, retrieved []domain.RetrievedChunk,
) *domain.RetrievalLogEntry {
	results := make([]domain.RetrievalLogResult, len(retrieved))
	for i, r := range retrieved {
		results[i] = domain.RetrievalLogResult{
			ChunkID:     r.Chunk.ID,
			Score:       r.Score,
			DocID:       r.Chunk.DocID,
			Version:     r.Chunk.Version,
			SectionPath: r.Chunk.SectionPath,
		}
	}
	return &domain.RetrievalLogEntry{
		LogID:         uuid.New().String(),
		CorrelationID: correlationID,
		Query:         query,
		Scope:         opts.Scope,
		DocTypes:      opts.DocTypes,
		Results:       results,
		CreatedAt:     time.Now().UTC(),
	}
}
