package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driving"
)

var (
	syncFull         bool
	syncDryRun       bool
	syncWatch        bool
	syncArchiveAfter time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise the document corpus into the knowledge base",
	Long: `Scans the source directory, detects new and changed document
versions via checksums, runs the parse/chunk/embed pipeline and applies
consistent updates to the vector index and metadata store.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "reprocess every document, ignoring checksums")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report the plan without writing anything")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep running and resync on source changes")
	syncCmd.Flags().DurationVar(&syncArchiveAfter, "archive-after", 0,
		"archive superseded/deprecated versions older than this (e.g. 2160h)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	opts := driving.RunOptions{
		Full:         syncFull,
		DryRun:       syncDryRun,
		ArchiveAfter: syncArchiveAfter,
	}

	if err := runOnce(cmd, opts); err != nil {
		return err
	}
	if !syncWatch {
		return nil
	}

	if watchSource == nil {
		return errors.New("source does not support watching")
	}
	changes, err := watchSource.Watch(cmd.Context())
	if err != nil {
		return fmt.Errorf("watching source: %w", err)
	}
	cmd.Println("Watching for changes (ctrl-c to stop)...")

	// Later runs in watch mode are always incremental.
	opts.Full = false
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := runOnce(cmd, opts); err != nil {
				// A concurrent run (e.g. a cron sync) is transient in
				// watch mode; anything else ends the watch.
				if errors.Is(err, domain.ErrSyncInProgress) {
					cmd.Println("Another sync is in progress, will retry on next change.")
					continue
				}
				return err
			}
		}
	}
}

func runOnce(cmd *cobra.Command, opts driving.RunOptions) error {
	if opts.DryRun {
		cmd.Println("Planning sync (dry run)...")
	} else {
		cmd.Println("Synchronising corpus...")
	}

	report, err := syncOrchestrator.Run(cmd.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) && !syncWatch {
			return fmt.Errorf("another sync run holds the corpus lease; try again later")
		}
		return err
	}

	printReport(cmd, report, opts.DryRun)
	return nil
}

func printReport(cmd *cobra.Command, report *driving.SyncReport, dryRun bool) {
	verb := ""
	if dryRun {
		verb = " (planned)"
	}
	cmd.Printf("Scanned %d documents in %s%s\n", report.Scanned, report.Duration.Round(time.Millisecond), verb)
	cmd.Printf("  created:   %d\n", report.Created)
	cmd.Printf("  updated:   %d\n", report.Updated)
	cmd.Printf("  unchanged: %d\n", report.Unchanged)
	cmd.Printf("  retired:   %d\n", report.Retired)
	if report.Archived > 0 {
		cmd.Printf("  archived:  %d\n", report.Archived)
	}

	if len(report.Failures) > 0 {
		cmd.Printf("  failures:  %d\n", len(report.Failures))
		for _, f := range report.Failures {
			where := f.Path
			if where == "" {
				where = f.DocID
			}
			cmd.Printf("    %s: %s\n", where, f.Err)
		}
	}
}
