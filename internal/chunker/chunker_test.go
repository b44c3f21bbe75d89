package chunker

import (
	"strings"
	"testing"

	"github.com/quillon/coachkb/internal/core/domain"
)

func testDoc(body string) *domain.Document {
	return &domain.Document{
		DocID:      "POL-002",
		Version:    3,
		RawContent: body,
	}
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := New()
		if c.targetMin != DefaultTargetMin {
			t.Errorf("expected targetMin %d, got %d", DefaultTargetMin, c.targetMin)
		}
		if c.hardCeiling != DefaultHardCeiling {
			t.Errorf("expected hardCeiling %d, got %d", DefaultHardCeiling, c.hardCeiling)
		}
	})

	t.Run("ceiling raised to target max", func(t *testing.T) {
		c := New(WithTargetRange(50, 300), WithHardCeiling(100))
		if c.hardCeiling < c.targetMax {
			t.Errorf("hardCeiling %d must not be below targetMax %d", c.hardCeiling, c.targetMax)
		}
	})

	t.Run("invalid range ignored", func(t *testing.T) {
		c := New(WithTargetRange(500, 100))
		if c.targetMin != DefaultTargetMin || c.targetMax != DefaultTargetMax {
			t.Error("invalid target range should keep defaults")
		}
	})
}

func TestChunk_NoHeadings(t *testing.T) {
	doc := testDoc("Just one paragraph of body text with no structure at all.")
	chunks, err := New().Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].SectionPath, "/") {
		t.Errorf("expected root section path, got %q", chunks[0].SectionPath)
	}
	if chunks[0].Position != 0 {
		t.Errorf("expected position 0, got %d", chunks[0].Position)
	}
}

func TestChunk_EmptyBody(t *testing.T) {
	_, err := New().Chunk(testDoc("   \n"))
	if err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestChunk_Deterministic(t *testing.T) {
	body := "# One\n\nFirst section text.\n\n# Two\n\nSecond section text.\n"
	c := New()

	first, err := c.Chunk(testDoc(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Chunk(testDoc(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d identity differs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestChunk_SiblingIsolation(t *testing.T) {
	// Editing one section must change only that section's identity.
	// Keep sections above the merge floor so they stay separate.
	sectionA := "Alpha section. " + strings.Repeat("Stable filler words here. ", 60)
	sectionB := "Beta section. " + strings.Repeat("More filler words here. ", 60)
	before := "# Alpha\n\n" + sectionA + "\n\n# Beta\n\n" + sectionB
	after := "# Alpha\n\n" + sectionA + "\n\n# Beta\n\n" + sectionB + " One extra sentence."

	c := New()
	chunksBefore, err := c.Chunk(testDoc(before))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunksAfter, err := c.Chunk(testDoc(after))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunksBefore) != 2 || len(chunksAfter) != 2 {
		t.Fatalf("expected 2 chunks each, got %d and %d", len(chunksBefore), len(chunksAfter))
	}

	if chunksBefore[0].ID != chunksAfter[0].ID {
		t.Error("untouched sibling section changed identity")
	}
	if chunksBefore[1].ID == chunksAfter[1].ID {
		t.Error("edited section kept its identity")
	}
}

func TestChunk_HeadingTrail(t *testing.T) {
	body := "# Verification\n\nIntro text for verification.\n\n## Callback Numbers\n\nUse the callback number on file.\n"
	chunks, err := New(WithTargetRange(1, 2)).Chunk(testDoc(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found bool
	for _, chunk := range chunks {
		if strings.Contains(chunk.SectionPath, "Verification > Callback Numbers") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a chunk with nested heading trail, got %v", sectionPaths(chunks))
	}
}

func TestChunk_MergesTinySections(t *testing.T) {
	body := "# A\n\nOne line.\n\n# B\n\nAnother line.\n\n# C\n\nThird line.\n"
	chunks, err := New().Chunk(testDoc(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("expected tiny sections to merge into 1 chunk, got %d: %v", len(chunks), sectionPaths(chunks))
	}
}

func TestChunk_ForceSplitLongSection(t *testing.T) {
	// One section far above the hard ceiling must split at sentence
	// boundaries, with deterministic suffixed paths.
	var b strings.Builder
	b.WriteString("# Long\n\n")
	for i := 0; i < 400; i++ {
		b.WriteString("This sentence pads the section well past the ceiling. ")
	}

	chunks, err := New().Chunk(testDoc(b.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected forced split, got %d chunk(s)", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.TokenCount > DefaultHardCeiling {
			t.Errorf("chunk %s exceeds hard ceiling: %d tokens", chunk.SectionPath, chunk.TokenCount)
		}
		if !strings.Contains(chunk.SectionPath, "#") {
			t.Errorf("forced split chunk missing path suffix: %q", chunk.SectionPath)
		}
	}
}

func TestChunk_PositionsAreSequential(t *testing.T) {
	body := "# One\n\n" + strings.Repeat("Words for the first section. ", 80) +
		"\n\n# Two\n\n" + strings.Repeat("Words for the second section. ", 80)
	chunks, err := New().Chunk(testDoc(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, chunk := range chunks {
		if chunk.Position != i {
			t.Errorf("chunk %d has position %d", i, chunk.Position)
		}
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("POL-002", 3, "01:Intro", "text")
	b := ChunkID("POL-002", 3, "01:Intro", "text")
	if a != b {
		t.Error("identical inputs must produce identical identities")
	}

	variants := []string{
		ChunkID("POL-003", 3, "01:Intro", "text"),
		ChunkID("POL-002", 4, "01:Intro", "text"),
		ChunkID("POL-002", 3, "02:Intro", "text"),
		ChunkID("POL-002", 3, "01:Intro", "other text"),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d collided with the base identity", i)
		}
	}

	if len(a) != 32 {
		t.Errorf("expected 32-char identity, got %d", len(a))
	}
}

func sectionPaths(chunks []domain.Chunk) []string {
	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = c.SectionPath
	}
	return paths
}
