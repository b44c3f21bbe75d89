package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit [correlation-id]",
	Short: "Replay the audit log for a correlation id",
	Long: `Prints the retrieval audit entries recorded under a correlation
id: the query, the filters and exactly which chunk versions were served.
Lets an operator answer "why did the coach say that" after the fact.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "output entries as JSON")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if auditService == nil {
		return errors.New("audit service not configured")
	}

	entries, err := auditService.Lookup(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("audit lookup failed: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("No audit entries for that correlation id.")
		return nil
	}

	if auditJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal entries: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for _, entry := range entries {
		cmd.Printf("%s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.LogID)
		cmd.Printf("  query: %q\n", entry.Query)
		if !entry.Scope.IsEmpty() {
			cmd.Printf("  scope: %s\n", formatScope(entry.Scope))
		}
		if len(entry.DocTypes) > 0 {
			cmd.Printf("  types: %v\n", entry.DocTypes)
		}
		if len(entry.Results) == 0 {
			cmd.Println("  served: nothing")
		}
		for _, r := range entry.Results {
			cmd.Printf("  served: %s v%d %s (%.2f)\n", r.DocID, r.Version, r.SectionPath, r.Score)
		}
		cmd.Println()
	}
	return nil
}
