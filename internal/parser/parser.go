// Package parser reads raw knowledge base documents: TOML front matter
// between "+++" fences followed by a markdown body. It validates required
// metadata and computes the body checksum used by the incremental sync
// gate. Parsing is pure; no stores are touched.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.DocumentParser = (*Parser)(nil)

// frontMatterFence delimits the TOML front matter block.
const frontMatterFence = "+++"

// docIDPattern matches stable document identifiers like "POL-002".
var docIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(-[A-Z0-9]+)*$`)

// frontMatter is the TOML front matter schema.
type frontMatter struct {
	DocID         string   `toml:"doc_id"`
	Version       int      `toml:"version"`
	DocType       string   `toml:"doc_type"`
	Title         string   `toml:"title"`
	BusinessLines []string `toml:"business_lines"`
	Queues        []string `toml:"queues"`
	Regions       []string `toml:"regions"`
}

// Parser parses raw document bytes into Document drafts.
type Parser struct{}

// New creates a new document parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts front matter and body from raw bytes. The returned
// document is a DRAFT; the sync orchestrator publishes it. Fails with a
// *domain.ValidationError naming the first missing or malformed field.
func (p *Parser) Parse(raw []byte, sourcePath string, modified time.Time) (*domain.Document, error) {
	meta, body, err := splitFrontMatter(string(raw))
	if err != nil {
		return nil, err
	}

	var fm frontMatter
	if err := toml.Unmarshal([]byte(meta), &fm); err != nil {
		return nil, &domain.ValidationError{Field: "front_matter", Reason: fmt.Sprintf("invalid TOML: %v", err)}
	}

	if fm.DocID == "" {
		return nil, &domain.ValidationError{Field: "doc_id", Reason: "required"}
	}
	if !docIDPattern.MatchString(fm.DocID) {
		return nil, &domain.ValidationError{Field: "doc_id", Reason: fmt.Sprintf("malformed identifier %q", fm.DocID)}
	}
	if fm.Version <= 0 {
		return nil, &domain.ValidationError{Field: "version", Reason: "must be a positive integer"}
	}
	if fm.DocType == "" {
		return nil, &domain.ValidationError{Field: "doc_type", Reason: "required"}
	}
	docType := domain.DocType(fm.DocType)
	if !docType.Valid() {
		return nil, &domain.ValidationError{Field: "doc_type", Reason: fmt.Sprintf("unrecognised value %q", fm.DocType)}
	}
	if strings.TrimSpace(fm.Title) == "" {
		return nil, &domain.ValidationError{Field: "title", Reason: "required"}
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, &domain.ValidationError{Field: "body", Reason: "document body is empty"}
	}

	now := time.Now().UTC()
	return &domain.Document{
		DocID:   fm.DocID,
		Version: fm.Version,
		DocType: docType,
		Title:   strings.TrimSpace(fm.Title),
		Status:  domain.StatusDraft,
		Scope: domain.ScopeFilter{
			BusinessLines: fm.BusinessLines,
			Queues:        fm.Queues,
			Regions:       fm.Regions,
		},
		Checksum:       Checksum(body),
		RawContent:     body,
		SourcePath:     sourcePath,
		SourceModified: modified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// splitFrontMatter separates the fenced TOML block from the body.
func splitFrontMatter(content string) (meta, body string, err error) {
	content = strings.TrimLeft(content, "\uFEFF\n\r\t ")
	if !strings.HasPrefix(content, frontMatterFence) {
		return "", "", &domain.ValidationError{Field: "front_matter", Reason: "missing opening +++ fence"}
	}

	rest := content[len(frontMatterFence):]
	idx := strings.Index(rest, "\n"+frontMatterFence)
	if idx < 0 {
		return "", "", &domain.ValidationError{Field: "front_matter", Reason: "missing closing +++ fence"}
	}

	meta = rest[:idx]
	body = rest[idx+len("\n"+frontMatterFence):]
	// Drop the remainder of the fence line.
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return meta, body, nil
}

// Checksum computes the hex SHA-256 of the whitespace-normalised body, so
// formatting-only edits do not trigger re-embedding.
func Checksum(body string) string {
	normalised := strings.Join(strings.Fields(body), " ")
	sum := sha256.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:])
}
