package driven

import (
	"time"

	"github.com/quillon/coachkb/internal/core/domain"
)

// DocumentParser validates raw document bytes and produces a Document
// draft plus its body checksum. Pure: no side effects.
type DocumentParser interface {
	// Parse extracts front matter and body. Fails with a
	// *domain.ValidationError naming the offending field when required
	// metadata is missing or malformed.
	Parse(raw []byte, sourcePath string, modified time.Time) (*domain.Document, error)
}

// Chunker splits a validated document body into retrieval units with
// deterministic identities.
type Chunker interface {
	// Chunk produces the ordered chunk sequence for a document version.
	// Identical input always yields an identical chunk set.
	Chunk(doc *domain.Document) ([]domain.Chunk, error)
}
