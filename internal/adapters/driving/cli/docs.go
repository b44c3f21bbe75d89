package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillon/coachkb/internal/core/domain"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect the document registry",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all ACTIVE document versions",
	RunE:  runDocsList,
}

var docsShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show a document's version history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsShowCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	if metadataStore == nil {
		return errors.New("metadata store not configured")
	}

	docs, err := metadataStore.ListActive(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No active documents. Run 'coachkb sync' first.")
		return nil
	}

	for _, doc := range docs {
		cmd.Printf("%-16s v%-3d %-20s %s\n", doc.DocID, doc.Version, doc.DocType, doc.Title)
		if !doc.Scope.IsEmpty() {
			cmd.Printf("%-16s      scope: %s\n", "", formatScope(doc.Scope))
		}
	}
	cmd.Printf("\n%d active documents\n", len(docs))
	return nil
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	if metadataStore == nil {
		return errors.New("metadata store not configured")
	}

	docID := args[0]
	versions, err := metadataStore.ListVersions(cmd.Context(), docID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}

	cmd.Printf("%s\n", docID)
	for _, doc := range versions {
		marker := " "
		if doc.Status == domain.StatusActive {
			marker = "*"
		}
		cmd.Printf("%s v%-3d %-11s %s", marker, doc.Version, doc.Status, doc.Title)
		if doc.SupersededBy != nil {
			cmd.Printf(" (superseded by v%d)", doc.SupersededBy.Version)
		}
		cmd.Println()

		chunks, err := metadataStore.GetChunks(cmd.Context(), doc.DocID, doc.Version)
		if err != nil {
			return fmt.Errorf("listing chunks: %w", err)
		}
		cmd.Printf("       %d chunks, checksum %.12s, updated %s\n",
			len(chunks), doc.Checksum, doc.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func formatScope(scope domain.ScopeFilter) string {
	var parts []string
	if len(scope.BusinessLines) > 0 {
		parts = append(parts, "lines="+strings.Join(scope.BusinessLines, ","))
	}
	if len(scope.Queues) > 0 {
		parts = append(parts, "queues="+strings.Join(scope.Queues, ","))
	}
	if len(scope.Regions) > 0 {
		parts = append(parts, "regions="+strings.Join(scope.Regions, ","))
	}
	if len(parts) == 0 {
		return "everywhere"
	}
	return strings.Join(parts, " ")
}
