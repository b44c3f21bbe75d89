package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillon/coachkb/internal/core/domain"
)

var (
	queryLines         []string
	queryQueues        []string
	queryRegions       []string
	queryTypes         []string
	queryK             int
	queryMinScore      float64
	queryJSON          bool
	queryCorrelationID string
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve knowledge base chunks relevant to a query",
	Long: `Runs a filtered semantic search over chunks of ACTIVE document
versions and prints ranked, cited results. Every served query is recorded
in the audit log under a correlation id.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryLines, "line", nil, "required business line (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryQueues, "queue", nil, "required queue (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryRegions, "region", nil, "required region (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryTypes, "type", nil,
		"restrict to document types (policy, coaching, example, external_reference)")
	queryCmd.Flags().IntVarP(&queryK, "limit", "n", 0, "maximum number of results")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "similarity threshold override")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().StringVar(&queryCorrelationID, "correlation-id", "", "correlation id for the audit log")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	var docTypes []domain.DocType
	for _, t := range queryTypes {
		dt := domain.DocType(t)
		if !dt.Valid() {
			return fmt.Errorf("unknown document type %q", t)
		}
		docTypes = append(docTypes, dt)
	}

	opts := domain.RetrievalOptions{
		Scope: domain.ScopeFilter{
			BusinessLines: queryLines,
			Queues:        queryQueues,
			Regions:       queryRegions,
		},
		DocTypes:      docTypes,
		K:             queryK,
		MinScore:      queryMinScore,
		CorrelationID: queryCorrelationID,
	}

	result, err := retrievalService.Retrieve(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if queryJSON {
		err = outputQueryJSON(cmd, result)
	} else {
		err = outputQueryText(cmd, result)
	}
	if err != nil {
		return err
	}

	// Non-zero exit on a degraded answer so scripted callers notice.
	if result.Status == domain.GroundingUnavailable {
		return domain.ErrGroundingUnavailable
	}
	return nil
}

// queryOutput is the JSON presentation of a retrieval result.
type queryOutput struct {
	Status        string            `json:"status"`
	CorrelationID string            `json:"correlation_id"`
	Chunks        []queryChunkEntry `json:"chunks"`
}

type queryChunkEntry struct {
	DocID       string  `json:"doc_id"`
	Version     int     `json:"version"`
	DocTitle    string  `json:"doc_title"`
	DocType     string  `json:"doc_type"`
	SectionPath string  `json:"section_path"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
}

func outputQueryJSON(cmd *cobra.Command, result *domain.RetrievalResult) error {
	out := queryOutput{
		Status:        string(result.Status),
		CorrelationID: result.CorrelationID,
		Chunks:        []queryChunkEntry{},
	}
	for _, c := range result.Chunks {
		out.Chunks = append(out.Chunks, queryChunkEntry{
			DocID:       c.Chunk.DocID,
			Version:     c.Chunk.Version,
			DocTitle:    c.DocTitle,
			DocType:     string(c.DocType),
			SectionPath: c.Chunk.SectionPath,
			Score:       c.Score,
			Content:     c.Chunk.Content,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryText(cmd *cobra.Command, result *domain.RetrievalResult) error {
	switch result.Status {
	case domain.GroundingUnavailable:
		cmd.Println("Retrieval unavailable: the knowledge base could not be reached.")
	case domain.GroundingNoMatch:
		cmd.Println("No relevant content found for the given query and filters.")
	default:
		cmd.Println("Results:")
		cmd.Println()
		for i, c := range result.Chunks {
			cmd.Printf("  [%d] %s v%d - %s (%.2f)\n", i+1, c.Chunk.DocID, c.Chunk.Version, c.DocTitle, c.Score)
			cmd.Printf("      %s | %s\n", c.DocType, c.Chunk.SectionPath)
			cmd.Printf("      %s\n", snippet(c.Chunk.Content, 200))
			cmd.Println()
		}
	}
	cmd.Printf("correlation id: %s\n", result.CorrelationID)
	return nil
}

// snippet truncates text for single-line display.
func snippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
