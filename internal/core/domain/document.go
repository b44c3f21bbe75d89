package domain

import (
	"fmt"
	"time"
)

// DocType classifies a document within the coaching corpus.
type DocType string

// Recognised document types.
const (
	DocTypePolicy            DocType = "policy"
	DocTypeCoaching          DocType = "coaching"
	DocTypeExample           DocType = "example"
	DocTypeExternalReference DocType = "external_reference"
)

// Valid reports whether the doc type is a recognised value.
func (t DocType) Valid() bool {
	switch t {
	case DocTypePolicy, DocTypeCoaching, DocTypeExample, DocTypeExternalReference:
		return true
	}
	return false
}

// DocStatus is the lifecycle state of one document version.
type DocStatus string

// Document lifecycle states. For a given doc_id at most one version is
// ACTIVE at any time.
const (
	StatusDraft      DocStatus = "DRAFT"
	StatusActive     DocStatus = "ACTIVE"
	StatusSuperseded DocStatus = "SUPERSEDED"
	StatusDeprecated DocStatus = "DEPRECATED"
	StatusArchived   DocStatus = "ARCHIVED"
)

// VersionRef identifies one version of one document.
type VersionRef struct {
	DocID   string
	Version int
}

// String renders the reference as "DOC-ID:v3".
func (r VersionRef) String() string {
	return fmt.Sprintf("%s:v%d", r.DocID, r.Version)
}

// Document is one version of a named unit of policy or coaching content.
// The doc_id is stable across versions; the version is monotonically
// increasing per doc_id.
type Document struct {
	// DocID is the stable document identifier, e.g. "POL-002".
	DocID string

	// Version is the monotonically increasing version number.
	Version int

	// DocType classifies the content.
	DocType DocType

	// Title is the human-readable title from the front matter.
	Title string

	// Status is the lifecycle state of this version.
	Status DocStatus

	// Scope holds the categorical tags used for retrieval filtering.
	Scope ScopeFilter

	// Checksum is the hex SHA-256 of the whitespace-normalised body.
	// Formatting-only edits do not change it.
	Checksum string

	// RawContent is the full body text, preserved verbatim.
	RawContent string

	// SupersededBy points at the version that replaced this one,
	// set exactly when this version leaves ACTIVE for SUPERSEDED.
	SupersededBy *VersionRef

	// SourcePath is the path this version was ingested from.
	SourcePath string

	// SourceModified is the source's last-modified marker at ingest time.
	// Used as the tie-break for racing publishers of the same version.
	SourceModified time.Time

	// CreatedAt is when this version row was first written.
	CreatedAt time.Time

	// UpdatedAt is when this version row last changed state.
	UpdatedAt time.Time
}

// Ref returns the (doc_id, version) reference for this document.
func (d *Document) Ref() VersionRef {
	return VersionRef{DocID: d.DocID, Version: d.Version}
}

// Chunk is a retrievable fragment of one document version.
//
// Chunk identity is deterministic: it is derived from the owning document's
// id and version, the chunk's structural section path and the section
// content digest. Re-processing unchanged content yields the same identity,
// which is what makes incremental sync a no-op for unchanged documents.
type Chunk struct {
	// ID is the deterministic chunk identity (hex digest).
	ID string

	// DocID and Version identify the owning document version.
	DocID   string
	Version int

	// SectionPath is the ordinal-prefixed heading trail,
	// e.g. "03:Verification > Callback Numbers".
	SectionPath string

	// Position is the ordinal position within the document version.
	Position int

	// Content is the chunk text.
	Content string

	// TokenCount is the estimated token count of Content.
	TokenCount int

	// EmbeddingRef is the opaque handle into the vector index.
	EmbeddingRef string

	// IsActive mirrors the owning document's ACTIVE status for fast
	// filtering. Chunks of superseded versions stay in the metadata
	// store with IsActive false.
	IsActive bool
}
