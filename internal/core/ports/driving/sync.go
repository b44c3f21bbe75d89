package driving

import (
	"context"
	"time"
)

// RunOptions configures a sync run.
type RunOptions struct {
	// Full ignores checksums and reprocesses every source document.
	// Used to recover from drift or corruption.
	Full bool

	// DryRun computes the plan (new/changed/retired/unchanged) without
	// embedding calls or store writes.
	DryRun bool

	// ArchiveAfter, when > 0, additionally archives SUPERSEDED and
	// DEPRECATED versions untouched for longer than this duration.
	ArchiveAfter time.Duration
}

// SyncFailure records one document that failed during a run. Failed
// documents do not abort the run; their prior state is left intact.
type SyncFailure struct {
	Path  string
	DocID string
	Err   string
}

// SyncReport summarises a completed run.
type SyncReport struct {
	// Scanned is the number of source documents enumerated.
	Scanned int

	// Unchanged is the number skipped by the checksum gate.
	Unchanged int

	// Created is the number of doc_ids seen for the first time.
	Created int

	// Updated is the number of version swaps applied.
	Updated int

	// Retired is the number of documents deprecated because they left
	// the source.
	Retired int

	// Archived is the number of versions moved to ARCHIVED.
	Archived int

	// Failures lists per-document errors.
	Failures []SyncFailure

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// SyncOrchestrator drives the ingestion lifecycle: change detection,
// parse/chunk/embed, and consistent dual-store updates.
type SyncOrchestrator interface {
	// Run executes one sync run. At most one run executes at a time;
	// concurrent attempts fail fast with ErrSyncInProgress. A cancelled
	// run stops between documents and leaves the corpus consistent for
	// whatever subset completed.
	Run(ctx context.Context, opts RunOptions) (*SyncReport, error)
}
