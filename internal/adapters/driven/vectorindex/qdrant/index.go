// Package qdrant provides a vector index adapter backed by a Qdrant
// server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "coachkb_chunks"
	DefaultTimeout    = 15 * time.Second

	// scrollPageSize is the page size for ListIDs.
	scrollPageSize = 1000
)

// scopeWildcard marks an empty scope dimension in point payloads.
// Qdrant match conditions cannot express "field is an empty array", so
// "applies everywhere" is stored as an explicit tag every filtered
// search also accepts.
const scopeWildcard = "*"

// pointNamespace derives stable UUID point ids from chunk identities.
// Qdrant only accepts UUIDs or unsigned integers as point ids; the real
// chunk identity travels in the payload.
var pointNamespace = uuid.MustParse("8a9f3a52-6c1d-4b8e-9e47-2f0c5a1d7b3e")

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the Qdrant base URL (default: http://localhost:6333).
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection is the collection name (default: coachkb_chunks).
	Collection string

	// Dimensions is the vector size (required).
	Dimensions int

	// Timeout is the per-request timeout (default: 15s).
	Timeout time.Duration
}

// Index is a REST client to one Qdrant collection, cosine distance.
type Index struct {
	client     *http.Client
	url        string
	apiKey     string
	collection string
}

// NewIndex creates the index client and ensures the collection exists.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	idx := &Index{
		client:     &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
	}

	// Qdrant returns 409 when the collection already exists; treat that
	// as success.
	err := idx.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s", cfg.Collection),
		map[string]any{
			"vectors": map[string]any{
				"size":     cfg.Dimensions,
				"distance": "Cosine",
			},
		}, nil, http.StatusConflict)
	if err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}
	return idx, nil
}

// pointID derives the stable UUID point id for a chunk identity.
func pointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// payloadScope encodes one scope dimension, substituting the wildcard
// for empty.
func payloadScope(tags []string) []string {
	if len(tags) == 0 {
		return []string{scopeWildcard}
	}
	return tags
}

// Upsert inserts or replaces entries under their chunk identities.
func (x *Index) Upsert(ctx context.Context, entries []driven.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]map[string]any, len(entries))
	for i, entry := range entries {
		points[i] = map[string]any{
			"id":     pointID(entry.ChunkID),
			"vector": entry.Vector,
			"payload": map[string]any{
				"chunk_id":       entry.ChunkID,
				"doc_id":         entry.DocID,
				"version":        entry.Version,
				"doc_type":       string(entry.DocType),
				"business_lines": payloadScope(entry.Scope.BusinessLines),
				"queues":         payloadScope(entry.Scope.Queues),
				"regions":        payloadScope(entry.Scope.Regions),
				"active":         entry.Active,
			},
		}
	}

	err := x.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", x.collection),
		map[string]any{"points": points}, nil)
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Delete removes entries by chunk identity. Point ids are derived, so no
// lookup round-trip is needed; unknown ids are ignored by the server.
func (x *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}

	err := x.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", x.collection),
		map[string]any{"points": ids}, nil)
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Search finds the k nearest neighbours satisfying the filter.
func (x *Index) Search(ctx context.Context, query []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 10
	}

	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": []string{"chunk_id"},
	}
	if qf := buildFilter(filter); qf != nil {
		req["filter"] = qf
	}

	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID string `json:"chunk_id"`
			} `json:"payload"`
		} `json:"result"`
	}
	err := x.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", x.collection),
		req, &resp)
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	hits := make([]driven.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Payload.ChunkID == "" {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    r.Payload.ChunkID,
			Similarity: r.Score,
		})
	}
	return hits, nil
}

// ListIDs returns every chunk identity in the collection via scroll
// paging.
func (x *Index) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset any

	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{"chunk_id"},
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload struct {
						ChunkID string `json:"chunk_id"`
					} `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := x.do(ctx, http.MethodPost,
			fmt.Sprintf("/collections/%s/points/scroll", x.collection),
			req, &resp)
		if err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}

		for _, p := range resp.Result.Points {
			if p.Payload.ChunkID != "" {
				ids = append(ids, p.Payload.ChunkID)
			}
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// Close releases resources.
func (x *Index) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// buildFilter translates a VectorFilter into a Qdrant filter clause.
// Returns nil when no condition applies.
func buildFilter(filter driven.VectorFilter) map[string]any {
	var must []map[string]any

	if filter.ActiveOnly {
		must = append(must, map[string]any{
			"key":   "active",
			"match": map[string]any{"value": true},
		})
	}

	dimension := func(key string, tags []string) {
		if len(tags) == 0 {
			return
		}
		// The wildcard admits documents whose scope leaves the
		// dimension empty.
		values := append(append([]string{}, tags...), scopeWildcard)
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"any": values},
		})
	}
	dimension("business_lines", filter.Scope.BusinessLines)
	dimension("queues", filter.Scope.Queues)
	dimension("regions", filter.Scope.Regions)

	if len(filter.DocTypes) > 0 {
		types := make([]string, len(filter.DocTypes))
		for i, t := range filter.DocTypes {
			types[i] = string(t)
		}
		must = append(must, map[string]any{
			"key":   "doc_type",
			"match": map[string]any{"any": types},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// do performs one JSON request against the Qdrant API. Extra accepted
// status codes beyond 2xx can be supplied for idempotent calls.
func (x *Index) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.url+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		accepted := false
		for _, code := range accept {
			if resp.StatusCode == code {
				accepted = true
				break
			}
		}
		if !accepted {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
		}
		return nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
