package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/core/ports/driving"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure HealthService implements the interface.
var _ driving.HealthService = (*HealthService)(nil)

// HealthService compares the vector index against the metadata store's
// active chunk set. A mismatch signals a partially failed prior sync and
// calls for an operator-invoked full refresh; nothing is healed here.
type HealthService struct {
	metadata driven.MetadataStore
	index    driven.VectorIndex
}

// NewHealthService creates a health service.
func NewHealthService(metadata driven.MetadataStore, index driven.VectorIndex) *HealthService {
	return &HealthService{metadata: metadata, index: index}
}

// CheckConsistency computes the symmetric difference between index
// identities and active chunk identities.
func (s *HealthService) CheckConsistency(ctx context.Context) (*driving.ConsistencyReport, error) {
	indexIDs, err := s.index.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index ids: %w", err)
	}
	activeIDs, err := s.metadata.ActiveChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active chunk ids: %w", err)
	}

	inIndex := make(map[string]bool, len(indexIDs))
	for _, id := range indexIDs {
		inIndex[id] = true
	}
	inStore := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		inStore[id] = true
	}

	report := &driving.ConsistencyReport{
		IndexCount:       len(indexIDs),
		ActiveChunkCount: len(activeIDs),
	}
	for _, id := range activeIDs {
		if !inIndex[id] {
			report.MissingFromIndex = append(report.MissingFromIndex, id)
		}
	}
	for _, id := range indexIDs {
		if !inStore[id] {
			report.OrphanedInIndex = append(report.OrphanedInIndex, id)
		}
	}
	sort.Strings(report.MissingFromIndex)
	sort.Strings(report.OrphanedInIndex)

	if !report.Consistent() {
		logger.Warn("Index inconsistency: %d missing from index, %d orphaned in index",
			len(report.MissingFromIndex), len(report.OrphanedInIndex))
	}
	return report, nil
}
