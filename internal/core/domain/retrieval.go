package domain

import "time"

// GroundingStatus distinguishes "no relevant content" from "retrieval
// subsystem down" for the coaching consumer. Both surface an empty result
// set; only the status differs.
type GroundingStatus string

// Grounding statuses.
const (
	// GroundingOK means at least one chunk cleared the score threshold.
	GroundingOK GroundingStatus = "ok"

	// GroundingNoMatch means retrieval worked but nothing relevant
	// survived the threshold. Callers must treat this as insufficient
	// grounding, not as an error.
	GroundingNoMatch GroundingStatus = "no_match"

	// GroundingUnavailable means the retrieval subsystem itself failed
	// (embedding timeout, index unreachable). Deliberately degraded to
	// an empty result instead of a hard failure.
	GroundingUnavailable GroundingStatus = "unavailable"
)

// RetrievalOptions configures one retrieval call.
type RetrievalOptions struct {
	// Scope holds the caller's required scope filters.
	Scope ScopeFilter

	// DocTypes optionally restricts to a document-type subset.
	DocTypes []DocType

	// K bounds the result count. Zero means the service default.
	K int

	// MinScore overrides the minimum similarity threshold when > 0.
	MinScore float64

	// CorrelationID is the caller-supplied id recorded in the audit
	// log. A fresh id is generated when empty.
	CorrelationID string
}

// RetrievedChunk is one ranked retrieval hit with its citation fields.
type RetrievedChunk struct {
	Chunk    Chunk
	DocTitle string
	DocType  DocType
	Score    float64
}

// RetrievalResult is what the coaching consumer receives.
type RetrievalResult struct {
	Status        GroundingStatus
	Chunks        []RetrievedChunk
	CorrelationID string
}

// RetrievalLogEntry is the immutable audit record written once per
// successful retrieval call. Entries are never mutated or deleted.
type RetrievalLogEntry struct {
	LogID         string
	CorrelationID string
	Query         string
	Scope         ScopeFilter
	DocTypes      []DocType
	Results       []RetrievalLogResult
	CreatedAt     time.Time
}

// RetrievalLogResult records one served hit in the audit log.
type RetrievalLogResult struct {
	ChunkID     string  `json:"chunk_id"`
	Score       float64 `json:"score"`
	DocID       string  `json:"doc_id"`
	Version     int     `json:"version"`
	SectionPath string  `json:"section_path"`
}
