package driven

import "context"

// EmbeddingIntent selects the retrieval intent for an embedding request.
// Content being indexed and search queries must be embedded differently;
// using the wrong intent is a silent accuracy defect, so the intent is a
// required parameter with no default.
type EmbeddingIntent string

// Embedding intents.
const (
	// IntentDocument embeds content being indexed.
	IntentDocument EmbeddingIntent = "document"

	// IntentQuery embeds a search query.
	IntentQuery EmbeddingIntent = "query"
)

// Valid reports whether the intent is a recognised value.
func (i EmbeddingIntent) Valid() bool {
	return i == IntentDocument || i == IntentQuery
}

// EmbeddingService converts texts into fixed-length vectors via an external
// embedding service.
//
// Implementations batch requests (bounded batch size), retry transient
// failures with exponential backoff up to a bounded attempt count, and
// surface exhaustion as a *domain.EmbeddingError.
type EmbeddingService interface {
	// EmbedBatch returns one vector per input text, in input order.
	// The intent is mandatory; an invalid intent is rejected.
	EmbedBatch(ctx context.Context, texts []string, intent EmbeddingIntent) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
