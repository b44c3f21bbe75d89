package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/coachkb/internal/core/domain"
)

// stubRetrieval serves a canned result.
type stubRetrieval struct {
	result *domain.RetrievalResult
	err    error
}

func (s *stubRetrieval) Retrieve(context.Context, string, domain.RetrievalOptions) (*domain.RetrievalResult, error) {
	return s.result, s.err
}

func runQueryWith(t *testing.T, stub *stubRetrieval, args ...string) (string, error) {
	t.Helper()
	prev := retrievalService
	retrievalService = stub
	t.Cleanup(func() { retrievalService = prev })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	err := runQuery(cmd, args)
	return out.String(), err
}

func TestRunQuery_PrintsRankedResults(t *testing.T) {
	stub := &stubRetrieval{result: &domain.RetrievalResult{
		Status:        domain.GroundingOK,
		CorrelationID: "case-4711",
		Chunks: []domain.RetrievedChunk{{
			Chunk: domain.Chunk{
				ID: "c1", DocID: "POL-001", Version: 2,
				SectionPath: "01:Refunds", Content: "Refunds over 500 EUR need approval.",
			},
			DocTitle: "Refund Policy",
			DocType:  domain.DocTypePolicy,
			Score:    0.91,
		}},
	}}

	out, err := runQueryWith(t, stub, "refund threshold")
	require.NoError(t, err)
	assert.Contains(t, out, "POL-001 v2")
	assert.Contains(t, out, "correlation id: case-4711")
}

func TestRunQuery_UnavailableExitsNonZero(t *testing.T) {
	stub := &stubRetrieval{result: &domain.RetrievalResult{
		Status:        domain.GroundingUnavailable,
		CorrelationID: "case-4711",
	}}

	out, err := runQueryWith(t, stub, "refund threshold")
	require.ErrorIs(t, err, domain.ErrGroundingUnavailable,
		"a degraded answer must fail the command for scripted callers")
	assert.Contains(t, out, "Retrieval unavailable")
	assert.Contains(t, out, "case-4711", "the correlation id is still printed for the audit trail")
}

func TestRunQuery_NoMatchExitsZero(t *testing.T) {
	stub := &stubRetrieval{result: &domain.RetrievalResult{
		Status:        domain.GroundingNoMatch,
		CorrelationID: "case-4711",
	}}

	out, err := runQueryWith(t, stub, "refund threshold")
	require.NoError(t, err, "no match is an answer, not a failure")
	assert.Contains(t, out, "No relevant content")
}
