package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillon/coachkb/internal/core/domain"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check vector index / metadata store consistency",
	Long: `Compares the set of chunk identities in the vector index against
the active chunk rows in the metadata store. A mismatch means a prior sync
failed partway; recovery is 'coachkb sync --full'.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	if healthService == nil {
		return errors.New("health service not configured")
	}

	report, err := healthService.CheckConsistency(cmd.Context())
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	cmd.Printf("index entries:  %d\n", report.IndexCount)
	cmd.Printf("active chunks:  %d\n", report.ActiveChunkCount)

	if report.Consistent() {
		cmd.Println("Consistent.")
		return nil
	}

	if len(report.MissingFromIndex) > 0 {
		cmd.Printf("missing from index (%d):\n", len(report.MissingFromIndex))
		for _, id := range report.MissingFromIndex {
			cmd.Printf("  %s\n", id)
		}
	}
	if len(report.OrphanedInIndex) > 0 {
		cmd.Printf("orphaned in index (%d):\n", len(report.OrphanedInIndex))
		for _, id := range report.OrphanedInIndex {
			cmd.Printf("  %s\n", id)
		}
	}
	cmd.Println("Run 'coachkb sync --full' to rebuild.")
	return domain.ErrIndexInconsistent
}
