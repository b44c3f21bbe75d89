package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 2})
	svc.backoffBase = time.Millisecond
	return svc
}

func respondEmbeddings(w http.ResponseWriter, n int) {
	resp := embedResponse{Embeddings: make([][]float64, n)}
	for i := range resp.Embeddings {
		resp.Embeddings[i] = []float64{0.1, 0.2}
	}
	json.NewEncoder(w).Encode(resp)
}

func TestEmbedBatch_AppliesIntentPrefix(t *testing.T) {
	var gotInput []string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		respondEmbeddings(w, len(req.Input))
	})

	_, err := svc.EmbedBatch(context.Background(), []string{"refund policy"}, driven.IntentQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{"search_query: refund policy"}, gotInput)

	_, err = svc.EmbedBatch(context.Background(), []string{"refund policy"}, driven.IntentDocument)
	require.NoError(t, err)
	assert.Equal(t, []string{"search_document: refund policy"}, gotInput)
}

func TestEmbedBatch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "loading model", http.StatusInternalServerError)
			return
		}
		respondEmbeddings(w, 1)
	})

	vectors, err := svc.EmbedBatch(context.Background(), []string{"text"}, driven.IntentDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load(), "two failures then success")
}

func TestEmbedBatch_ExhaustionReturnsEmbeddingError(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	})

	_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"}, driven.IntentDocument)
	require.Error(t, err)

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 2, embErr.BatchSize)
	assert.Equal(t, DefaultMaxAttempts, embErr.Attempts)
	assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
}

func TestEmbedBatch_ClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown model", http.StatusNotFound)
	})

	_, err := svc.EmbedBatch(context.Background(), []string{"text"}, driven.IntentDocument)
	require.Error(t, err)

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, int32(1), calls.Load(), "a 4xx is not worth retrying")
}

func TestEmbedBatch_InvalidIntentRejected(t *testing.T) {
	svc := NewEmbeddingService(Config{})

	_, err := svc.EmbedBatch(context.Background(), []string{"text"}, driven.EmbeddingIntent("bogus"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
