// Package chunker splits validated document bodies into retrieval units
// along markdown heading boundaries. Chunk identities are deterministic:
// identical input always yields the identical chunk set, which is what the
// sync orchestrator's no-op detection relies on.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
)

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// Default token bounds. Sections are merged below the target floor,
// split above the hard ceiling.
const (
	DefaultTargetMin   = 200
	DefaultTargetMax   = 500
	DefaultHardCeiling = 600
)

// rootSectionPath labels body text that sits under no heading.
const rootSectionPath = "/"

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// Chunker splits document bodies at structural section boundaries.
type Chunker struct {
	targetMin   int
	targetMax   int
	hardCeiling int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithTargetRange sets the target token range per chunk.
func WithTargetRange(minTokens, maxTokens int) Option {
	return func(c *Chunker) {
		if minTokens > 0 && maxTokens > minTokens {
			c.targetMin = minTokens
			c.targetMax = maxTokens
		}
	}
}

// WithHardCeiling sets the hard token ceiling that forces a sentence split.
func WithHardCeiling(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.hardCeiling = tokens
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		targetMin:   DefaultTargetMin,
		targetMax:   DefaultTargetMax,
		hardCeiling: DefaultHardCeiling,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hardCeiling < c.targetMax {
		c.hardCeiling = c.targetMax
	}
	return c
}

// section is one structural unit of the body before merging/splitting.
type section struct {
	path string
	text string
}

// Chunk produces the ordered chunk sequence for a document version.
// A body with zero headings produces exactly one chunk covering the whole
// body under the root section path.
func (c *Chunker) Chunk(doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil || strings.TrimSpace(doc.RawContent) == "" {
		return nil, &domain.ValidationError{Field: "body", Reason: "nothing to chunk"}
	}

	sections := splitSections(doc.RawContent)
	sections = c.mergeTiny(sections)

	var chunks []domain.Chunk
	position := 0
	for i, sec := range sections {
		parts := c.forceSplit(sec.text)
		for j, part := range parts {
			path := fmt.Sprintf("%02d:%s", i+1, sec.path)
			if len(parts) > 1 {
				// Suffix keeps identity deterministic for forced splits.
				path = fmt.Sprintf("%s#%d", path, j+1)
			}
			chunks = append(chunks, domain.Chunk{
				ID:          ChunkID(doc.DocID, doc.Version, path, part),
				DocID:       doc.DocID,
				Version:     doc.Version,
				SectionPath: path,
				Position:    position,
				Content:     part,
				TokenCount:  estimateTokens(part),
			})
			position++
		}
	}

	return chunks, nil
}

// ChunkID computes the deterministic chunk identity from the owning
// document version, the section path and the section content digest.
// Editing one section changes only that section's identity; siblings keep
// theirs.
func ChunkID(docID string, version int, sectionPath, content string) string {
	contentSum := sha256.Sum256([]byte(content))

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s", docID, version, sectionPath, hex.EncodeToString(contentSum[:]))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// splitSections walks the body line by line, tracking the heading trail.
// Text before the first heading becomes a root section.
func splitSections(body string) []section {
	var sections []section
	var trail []string   // heading titles by depth
	var current []string // lines of the section being accumulated
	currentPath := rootSectionPath

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			sections = append(sections, section{path: currentPath, text: text})
		}
		current = current[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			current = append(current, line)
			continue
		}

		flush()
		level := len(m[1])
		title := m[2]
		if level <= len(trail) {
			trail = trail[:level-1]
		}
		trail = append(trail, title)
		currentPath = strings.Join(trail, " > ")
		// Keep the heading text inside the chunk for retrieval context.
		current = append(current, title)
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, section{path: rootSectionPath, text: strings.TrimSpace(body)})
	}
	return sections
}

// mergeTiny greedily merges adjacent undersized sections while the
// combination stays within the target ceiling. The merged section keeps
// the first section's path.
func (c *Chunker) mergeTiny(sections []section) []section {
	if len(sections) < 2 {
		return sections
	}

	merged := make([]section, 0, len(sections))
	acc := sections[0]
	accTokens := estimateTokens(acc.text)

	for _, next := range sections[1:] {
		nextTokens := estimateTokens(next.text)
		if accTokens < c.targetMin && accTokens+nextTokens <= c.targetMax {
			acc.text = acc.text + "\n\n" + next.text
			accTokens += nextTokens
			continue
		}
		merged = append(merged, acc)
		acc = next
		accTokens = nextTokens
	}
	merged = append(merged, acc)
	return merged
}

// forceSplit splits text exceeding the hard ceiling at the sentence
// boundary nearest the midpoint, recursively.
func (c *Chunker) forceSplit(text string) []string {
	if estimateTokens(text) <= c.hardCeiling {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		// A single run-on sentence cannot be split further.
		return []string{text}
	}

	half := estimateTokens(text) / 2
	cut := 0
	running := 0
	for i, s := range sentences {
		running += estimateTokens(s)
		if running >= half {
			cut = i + 1
			break
		}
	}
	if cut == 0 || cut >= len(sentences) {
		cut = len(sentences) / 2
	}

	left := strings.TrimSpace(strings.Join(sentences[:cut], " "))
	right := strings.TrimSpace(strings.Join(sentences[cut:], " "))
	return append(c.forceSplit(left), c.forceSplit(right)...)
}

// splitSentences splits text by common sentence terminators.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// estimateTokens approximates the token count as 4/3 of the word count.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}
