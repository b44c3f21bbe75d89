package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress indicates another sync run holds the corpus
	// lease. Callers should retry later; this is not a data error.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrIndexInconsistent indicates the vector index and the metadata
	// store disagree about the active chunk set. Signals a partially
	// failed prior sync; recovery is an operator-invoked full refresh.
	ErrIndexInconsistent = errors.New("vector index inconsistent with metadata store")

	// ErrGroundingUnavailable indicates the retrieval subsystem is down.
	ErrGroundingUnavailable = errors.New("grounding unavailable")
)

// ValidationError reports a malformed document that was rejected before any
// store write. It names the offending field. Validation failures are
// surfaced to the operator and never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// EmbeddingError reports an exhausted-retry failure calling the embedding
// service for one batch. The sync orchestrator must not apply any partial
// index mutation for the affected document.
type EmbeddingError struct {
	DocID     string
	BatchSize int
	Attempts  int
	Err       error
}

func (e *EmbeddingError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("embedding failed for %s (batch of %d, %d attempts): %v",
			e.DocID, e.BatchSize, e.Attempts, e.Err)
	}
	return fmt.Sprintf("embedding failed (batch of %d, %d attempts): %v",
		e.BatchSize, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
