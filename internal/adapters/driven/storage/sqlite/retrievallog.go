package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// retrievalLogStore implements driven.RetrievalLogStore.
type retrievalLogStore struct {
	store *Store
}

var _ driven.RetrievalLogStore = (*retrievalLogStore)(nil)

// logFilters is the JSON shape of the persisted filter snapshot.
type logFilters struct {
	BusinessLines []string `json:"business_lines,omitempty"`
	Queues        []string `json:"queues,omitempty"`
	Regions       []string `json:"regions,omitempty"`
	DocTypes      []string `json:"doc_types,omitempty"`
}

// Append records one retrieval. Insert only; there is no update path.
func (s *retrievalLogStore) Append(ctx context.Context, entry *domain.RetrievalLogEntry) error {
	filters := logFilters{
		BusinessLines: entry.Scope.BusinessLines,
		Queues:        entry.Scope.Queues,
		Regions:       entry.Scope.Regions,
	}
	for _, t := range entry.DocTypes {
		filters.DocTypes = append(filters.DocTypes, string(t))
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshalling filters: %w", err)
	}

	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO retrieval_log (log_id, correlation_id, query, filters, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.LogID, entry.CorrelationID, entry.Query,
		string(filtersJSON), string(resultsJSON), formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("appending retrieval log entry: %w", err)
	}
	return nil
}

// GetByCorrelationID returns all entries for a correlation id, oldest first.
func (s *retrievalLogStore) GetByCorrelationID(ctx context.Context, correlationID string) ([]domain.RetrievalLogEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT log_id, correlation_id, query, filters, results, created_at
		FROM retrieval_log WHERE correlation_id = ? ORDER BY created_at, log_id
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("querying retrieval log: %w", err)
	}
	defer rows.Close()

	var entries []domain.RetrievalLogEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.RetrievalLogEntry
		var filtersJSON, resultsJSON, createdAt string
		if err := rows.Scan(&entry.LogID, &entry.CorrelationID, &entry.Query,
			&filtersJSON, &resultsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning retrieval log entry: %w", err)
		}

		var filters logFilters
		if err := json.Unmarshal([]byte(filtersJSON), &filters); err != nil {
			return nil, fmt.Errorf("unmarshaling filters: %w", err)
		}
		entry.Scope = domain.ScopeFilter{
			BusinessLines: filters.BusinessLines,
			Queues:        filters.Queues,
			Regions:       filters.Regions,
		}
		for _, t := range filters.DocTypes {
			entry.DocTypes = append(entry.DocTypes, domain.DocType(t))
		}

		if err := json.Unmarshal([]byte(resultsJSON), &entry.Results); err != nil {
			return nil, fmt.Errorf("unmarshaling results: %w", err)
		}

		t, err := time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.CreatedAt = t

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating retrieval log: %w", err)
	}
	return entries, nil
}
