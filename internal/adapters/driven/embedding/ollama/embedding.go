// Package ollama provides an embedding service adapter using Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768 // nomic-embed-text default

	// DefaultMaxAttempts bounds retries per batch.
	DefaultMaxAttempts = 4

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 500 * time.Millisecond
)

// nomic-embed-text is trained with task prefixes; embedding a query the
// same way as a document measurably hurts ranking.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// MaxAttempts bounds retries per batch (default: 4).
	MaxAttempts int
}

// EmbeddingService generates embeddings using Ollama.
type EmbeddingService struct {
	client      *http.Client
	baseURL     string
	model       string
	dimensions  int
	maxAttempts int
	backoffBase time.Duration
}

// embedRequest is the Ollama batch embed API request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama batch embed API response format.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewEmbeddingService creates a new Ollama embedding service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
}

// EmbedBatch generates embeddings for the texts, in input order. The
// intent selects the nomic task prefix. Transient backend failures are
// retried with exponential backoff; exhaustion surfaces as a
// domain.EmbeddingError.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string, intent driven.EmbeddingIntent) ([][]float32, error) {
	if !intent.Valid() {
		return nil, &domain.ValidationError{Field: "intent", Reason: "must be document or query"}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	prefix := documentPrefix
	if intent == driven.IntentQuery {
		prefix = queryPrefix
	}
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = prefix + text
	}

	return s.embedWithRetry(ctx, input)
}

// embedWithRetry calls the API for one batch, retrying transient failures
// with exponential backoff until attempts run out.
func (s *EmbeddingService) embedWithRetry(ctx context.Context, input []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		vectors, retryable, err := s.embedOnce(ctx, input)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		if attempt < s.maxAttempts {
			delay := s.backoffBase << (attempt - 1)
			logger.Debug("Embedding attempt %d/%d failed, retrying in %s: %v",
				attempt, s.maxAttempts, delay, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, &domain.EmbeddingError{
		BatchSize: len(input),
		Attempts:  s.maxAttempts,
		Err:       lastErr,
	}
}

// embedOnce performs a single API call. The second return value reports
// whether the failure is worth retrying.
func (s *EmbeddingService) embedOnce(ctx context.Context, input []string) ([][]float32, bool, error) {
	reqBody := embedRequest{
		Model: s.model,
		Input: input,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/api/embed",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retryable, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, retryable, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	if len(embedResp.Embeddings) != len(input) {
		return nil, false, fmt.Errorf("ollama: expected %d embeddings, got %d", len(input), len(embedResp.Embeddings))
	}

	// Convert float64 to float32
	embeddings := make([][]float32, len(embedResp.Embeddings))
	for i, vector := range embedResp.Embeddings {
		embedding := make([]float32, len(vector))
		for j, v := range vector {
			embedding[j] = float32(v)
		}
		embeddings[i] = embedding
	}

	return embeddings, false, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
