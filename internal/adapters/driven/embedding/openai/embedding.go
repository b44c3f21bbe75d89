// Package openai provides an embedding service adapter using OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// DefaultMaxBatch caps texts per API call. Larger inputs are split
	// into sequential sub-batches.
	DefaultMaxBatch = 250

	// DefaultMaxAttempts bounds retries per sub-batch.
	DefaultMaxAttempts = 4

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultRequestsPerSecond throttles API calls across batches.
	DefaultRequestsPerSecond = 5
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxBatch caps texts per API call (default: 250).
	MaxBatch int

	// MaxAttempts bounds retries per batch (default: 4).
	MaxAttempts int

	// RequestsPerSecond throttles API calls (default: 5).
	RequestsPerSecond float64
}

// EmbeddingService generates embeddings using OpenAI API.
type EmbeddingService struct {
	client      *http.Client
	limiter     *rate.Limiter
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	maxBatch    int
	maxAttempts int
	backoffBase time.Duration
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	// Determine dimensions
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  dimensions,
		maxBatch:    cfg.MaxBatch,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: DefaultBackoffBase,
	}, nil
}

// EmbedBatch generates embeddings for the texts, in input order. OpenAI
// embedding models take no intent parameter, so document and query
// embeddings share one representation; the intent is still validated to
// keep call sites honest across providers.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string, intent driven.EmbeddingIntent) ([][]float32, error) {
	if !intent.Valid() {
		return nil, &domain.ValidationError{Field: "intent", Reason: "must be document or query"}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.maxBatch {
		end := start + s.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedWithRetry calls the API for one batch, retrying transient failures
// with exponential backoff until attempts run out.
func (s *EmbeddingService) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		vectors, retryable, err := s.embedOnce(ctx, texts)
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
		BatchSize: len(texts),
		Attempts:  s.maxAttempts,
		Err:       lastErr,
	}
}

// embedOnce performs a single API call. The second return value reports
// whether the failure is worth retrying.
func (s *EmbeddingService) embedOnce(ctx context.Context, texts []string) ([][]float32, bool, error) {
	reqBody := embeddingRequest{
		Model: s.model,
		Input: texts,
	}

	// Only include dimensions for text-embedding-3-* models
	if s.model == "text-embedding-3-small" || s.model == "text-embedding-3-large" {
		if s.dimensions > 0 {
			reqBody.Dimensions = s.dimensions
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	if embedResp.Error != nil {
		return nil, false, fmt.Errorf("openai error: %s", embedResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
	}

	// Convert float64 to float32 and order by index
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[data.Index] = embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, false, fmt.Errorf("openai: missing embedding for input %d", i)
		}
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
