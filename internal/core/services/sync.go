package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/core/ports/driving"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// Default sync tuning.
const (
	// DefaultConcurrency bounds parallel parse/chunk/embed work.
	// Embedding calls dominate latency; store mutations stay serial.
	DefaultConcurrency = 4

	// DefaultLeaseTTL bounds how long a crashed run blocks the corpus.
	DefaultLeaseTTL = 15 * time.Minute
)

// SyncOrchestrator coordinates corpus synchronisation: change detection,
// the parse→chunk→embed pipeline, and the consistent dual-store swap.
type SyncOrchestrator struct {
	source   driven.DocumentSource
	parser   driven.DocumentParser
	chunker  driven.Chunker
	embedder driven.EmbeddingService
	metadata driven.MetadataStore
	index    driven.VectorIndex
	leases   driven.LeaseStore

	concurrency int
	leaseTTL    time.Duration
}

// SyncOption configures the orchestrator.
type SyncOption func(*SyncOrchestrator)

// WithConcurrency bounds the parallel embed stage.
func WithConcurrency(n int) SyncOption {
	return func(o *SyncOrchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLeaseTTL sets the corpus lease duration.
func WithLeaseTTL(ttl time.Duration) SyncOption {
	return func(o *SyncOrchestrator) {
		if ttl > 0 {
			o.leaseTTL = ttl
		}
	}
}

// NewSyncOrchestrator creates a sync orchestrator.
func NewSyncOrchestrator(
	source driven.DocumentSource,
	parser driven.DocumentParser,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	metadata driven.MetadataStore,
	index driven.VectorIndex,
	leases driven.LeaseStore,
	opts ...SyncOption,
) *SyncOrchestrator {
	o := &SyncOrchestrator{
		source:      source,
		parser:      parser,
		chunker:     chunker,
		embedder:    embedder,
		metadata:    metadata,
		index:       index,
		leases:      leases,
		concurrency: DefaultConcurrency,
		leaseTTL:    DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// docPlan is one document's classified work item.
type docPlan struct {
	doc      *domain.Document
	previous *domain.Document // current ACTIVE version, nil for new docs

	// Filled by the prepare stage.
	chunks  []domain.Chunk
	vectors [][]float32
}

// Run executes one sync run under the corpus lease.
func (o *SyncOrchestrator) Run(ctx context.Context, opts driving.RunOptions) (*driving.SyncReport, error) {
	started := time.Now()
	report := &driving.SyncReport{}

	lease, err := o.leases.Acquire(ctx, leaseOwner(), o.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	defer func() {
		if err := o.leases.Release(context.WithoutCancel(ctx), lease.LeaseID); err != nil {
			logger.Warn("Failed to release sync lease %s: %v", lease.LeaseID, err)
		}
	}()

	logger.Section("Sync Run")
	logger.Info("Lease %s acquired by %s", lease.LeaseID, lease.Owner)

	files, err := o.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source documents: %w", err)
	}
	report.Scanned = len(files)
	logger.Debug("Source enumerated: %d documents", len(files))

	plans, seen := o.classify(ctx, files, opts, report)

	if opts.DryRun {
		for _, plan := range plans {
			if plan.previous == nil {
				report.Created++
			} else {
				report.Updated++
			}
		}
		o.reportRetirements(ctx, seen, report, true)
		report.Duration = time.Since(started)
		return report, nil
	}

	if err := o.prepare(ctx, plans, report); err != nil {
		return nil, err
	}

	// Apply swaps one document at a time. Each document's update is the
	// unit of atomicity; cancellation is honoured between documents so a
	// cancelled run leaves a fully consistent corpus.
	for _, plan := range plans {
		if plan.chunks == nil {
			continue // preparation failed, already reported
		}
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		if err := o.applyUpdate(ctx, plan); err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{
				Path:  plan.doc.SourcePath,
				DocID: plan.doc.DocID,
				Err:   err.Error(),
			})
			logger.Warn("Update failed for %s: %v", plan.doc.Ref(), err)
			continue
		}
		if plan.previous == nil {
			report.Created++
		} else {
			report.Updated++
		}
	}

	o.reportRetirements(ctx, seen, report, false)

	if opts.ArchiveAfter > 0 {
		cutoff := time.Now().UTC().Add(-opts.ArchiveAfter)
		n, err := o.metadata.ArchiveBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("Archive pass failed: %v", err)
		} else {
			report.Archived = n
		}
	}

	report.Duration = time.Since(started)
	logger.Info("Sync complete: %d created, %d updated, %d unchanged, %d retired, %d failures",
		report.Created, report.Updated, report.Unchanged, report.Retired, len(report.Failures))
	return report, nil
}

// classify parses every source file, resolves racing publishers and
// applies the checksum gate. Returns the work plans plus the set of
// doc_ids present in the source.
func (o *SyncOrchestrator) classify(
	ctx context.Context,
	files []domain.SourceFile,
	opts driving.RunOptions,
	report *driving.SyncReport,
) ([]*docPlan, map[string]bool) {
	// Parse everything first; racing (doc_id, version) publishers are
	// resolved last-writer-by-source-timestamp, ties by greater path.
	parsed := make(map[string]*domain.Document)
	for _, file := range files {
		raw, err := o.source.Read(ctx, file.Path)
		if err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{Path: file.Path, Err: err.Error()})
			continue
		}
		doc, err := o.parser.Parse(raw, file.Path, file.Modified)
		if err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{Path: file.Path, Err: err.Error()})
			logger.Warn("Rejected %s: %v", file.Path, err)
			continue
		}

		key := doc.Ref().String()
		if existing, ok := parsed[key]; ok {
			if laterWriter(doc, existing) {
				logger.Warn("Racing publishers for %s: %s wins over %s", key, doc.SourcePath, existing.SourcePath)
				parsed[key] = doc
			} else {
				logger.Warn("Racing publishers for %s: %s wins over %s", key, existing.SourcePath, doc.SourcePath)
			}
			continue
		}
		parsed[key] = doc
	}

	// Stable order keeps runs reproducible.
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var plans []*docPlan
	for _, key := range keys {
		doc := parsed[key]
		seen[doc.DocID] = true

		current, err := o.metadata.GetActiveVersion(ctx, doc.DocID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			report.Failures = append(report.Failures, driving.SyncFailure{
				Path: doc.SourcePath, DocID: doc.DocID, Err: err.Error(),
			})
			continue
		}

		if current != nil {
			if !opts.Full && current.Checksum == doc.Checksum {
				report.Unchanged++
				logger.Debug("Unchanged: %s", doc.Ref())
				continue
			}
			if doc.Version < current.Version {
				report.Failures = append(report.Failures, driving.SyncFailure{
					Path: doc.SourcePath, DocID: doc.DocID,
					Err: fmt.Sprintf("version %d is older than active version %d", doc.Version, current.Version),
				})
				continue
			}
			if doc.Version == current.Version && current.Checksum != doc.Checksum {
				report.Failures = append(report.Failures, driving.SyncFailure{
					Path: doc.SourcePath, DocID: doc.DocID,
					Err: fmt.Sprintf("content changed but version %d was not incremented", doc.Version),
				})
				continue
			}
		}

		plans = append(plans, &docPlan{doc: doc, previous: current})
	}

	return plans, seen
}

// prepare runs the parse→chunk→embed pipeline for each plan with bounded
// concurrency. A document whose embedding fails is dropped from the run
// with its prior state intact; no stores have been touched for it.
func (o *SyncOrchestrator) prepare(ctx context.Context, plans []*docPlan, report *driving.SyncReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	type failure struct {
		plan *docPlan
		err  error
	}
	failures := make(chan failure, len(plans))

	for _, plan := range plans {
		plan := plan
		g.Go(func() error {
			chunks, err := o.chunker.Chunk(plan.doc)
			if err != nil {
				failures <- failure{plan: plan, err: fmt.Errorf("chunk: %w", err)}
				return nil
			}

			texts := make([]string, len(chunks))
			for i := range chunks {
				texts[i] = chunks[i].Content
			}

			vectors, err := o.embedder.EmbedBatch(gctx, texts, driven.IntentDocument)
			if err != nil {
				var embErr *domain.EmbeddingError
				if errors.As(err, &embErr) && embErr.DocID == "" {
					embErr.DocID = plan.doc.Ref().String()
				}
				failures <- failure{plan: plan, err: err}
				return nil
			}
			if len(vectors) != len(chunks) {
				failures <- failure{plan: plan, err: fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(chunks), len(vectors))}
				return nil
			}

			for i := range chunks {
				chunks[i].EmbeddingRef = chunks[i].ID
				chunks[i].IsActive = true
			}
			plan.chunks = chunks
			plan.vectors = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	close(failures)

	for f := range failures {
		report.Failures = append(report.Failures, driving.SyncFailure{
			Path:  f.plan.doc.SourcePath,
			DocID: f.plan.doc.DocID,
			Err:   f.err.Error(),
		})
		logger.Warn("Prepare failed for %s: %v", f.plan.doc.Ref(), f.err)
	}
	return nil
}

// applyUpdate performs the per-document atomic swap. Ordering is
// insert-then-delete: the new vectors land first, then SaveVersion
// publishes the new version and demotes the old one in a single store
// transaction, then the old vectors are dropped. A reader mid-update sees
// the old version or the new version fully, never neither.
//
// A full refresh re-applies the active version onto itself; the chunk
// identities are deterministic, so the index upsert and SaveVersion
// converge in place and there is nothing to demote or delete.
func (o *SyncOrchestrator) applyUpdate(ctx context.Context, plan *docPlan) error {
	doc := plan.doc
	logger.Debug("Applying %s (%d chunks)", doc.Ref(), len(plan.chunks))

	// Previous version's chunk identities, fetched before any mutation.
	// Whichever of them the new chunk set does not reuse are removed from
	// the index after the swap: all of them on a version swap, none on an
	// in-place refresh of an unchanged document.
	var prevChunkIDs []string
	if plan.previous != nil {
		prevChunks, err := o.metadata.GetChunks(ctx, plan.previous.DocID, plan.previous.Version)
		if err != nil {
			return fmt.Errorf("get previous chunks: %w", err)
		}
		for _, c := range prevChunks {
			prevChunkIDs = append(prevChunkIDs, c.ID)
		}
	}

	// 1. Insert the new version's chunks into the vector index.
	entries := make([]driven.VectorEntry, len(plan.chunks))
	for i, c := range plan.chunks {
		entries[i] = driven.VectorEntry{
			ChunkID: c.ID,
			Vector:  plan.vectors[i],
			DocID:   doc.DocID,
			Version: doc.Version,
			DocType: doc.DocType,
			Scope:   doc.Scope,
			Active:  true,
		}
	}
	if err := o.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	// 2. Publish the new version; the store atomically demotes the
	// previous ACTIVE version in the same transaction.
	doc.Status = domain.StatusActive
	if err := o.metadata.SaveVersion(ctx, doc, plan.chunks); err != nil {
		return fmt.Errorf("save version: %w", err)
	}

	// 3. Drop the previous vectors the new version did not reuse.
	kept := make(map[string]bool, len(plan.chunks))
	for _, c := range plan.chunks {
		kept[c.ID] = true
	}
	var stale []string
	for _, id := range prevChunkIDs {
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := o.index.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete previous vectors: %w", err)
		}
	}

	return nil
}

// reportRetirements deprecates ACTIVE documents that are no longer in the
// source: vector removal first, then the status update. In dry-run mode it
// only counts them.
func (o *SyncOrchestrator) reportRetirements(ctx context.Context, seen map[string]bool, report *driving.SyncReport, dryRun bool) {
	active, err := o.metadata.ListActive(ctx)
	if err != nil {
		logger.Warn("Retirement scan failed: %v", err)
		return
	}

	for _, doc := range active {
		if seen[doc.DocID] {
			continue
		}
		if dryRun {
			report.Retired++
			continue
		}

		logger.Info("Retiring %s (absent from source)", doc.Ref())
		chunks, err := o.metadata.GetChunks(ctx, doc.DocID, doc.Version)
		if err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{DocID: doc.DocID, Err: err.Error()})
			continue
		}
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := o.index.Delete(ctx, ids); err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{DocID: doc.DocID, Err: err.Error()})
			continue
		}
		if err := o.metadata.MarkStatus(ctx, doc.DocID, doc.Version, domain.StatusDeprecated); err != nil {
			report.Failures = append(report.Failures, driving.SyncFailure{DocID: doc.DocID, Err: err.Error()})
			continue
		}
		report.Retired++
	}
}

// laterWriter reports whether a should win over b for the same
// (doc_id, version): later source modification time, ties broken by
// lexicographically greater source path.
func laterWriter(a, b *domain.Document) bool {
	if !a.SourceModified.Equal(b.SourceModified) {
		return a.SourceModified.After(b.SourceModified)
	}
	return a.SourcePath > b.SourcePath
}

// leaseOwner describes this process for lease diagnostics.
func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/pid-%d", host, os.Getpid())
}
