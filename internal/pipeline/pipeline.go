// Package pipeline runs graph creation for one read directory: reconcile
// against the previous run, delete stale documents, ingest documents and
// code in batches, merge document and code entities, and save the manifest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/DeusData/repo-graphrag/internal/config"
	"github.com/DeusData/repo-graphrag/internal/discover"
	"github.com/DeusData/repo-graphrag/internal/docingest"
	"github.com/DeusData/repo-graphrag/internal/extract"
	"github.com/DeusData/repo-graphrag/internal/merge"
	"github.com/DeusData/repo-graphrag/internal/metrics"
	"github.com/DeusData/repo-graphrag/internal/reconcile"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/tokenizer"
)

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Store *store.Store
	// StorageDir holds the manifest written after every run.
	StorageDir   string
	Summarizer   extract.Summarizer
	DocExtractor docingest.Extractor
	Embedder     merge.Embedder
	Tokenizer    tokenizer.Tokenizer
}

// Options tune batching, chunking and merging.
type Options struct {
	Parallel       int
	BatchPause     time.Duration
	ChunkMaxTokens int
	MaxDepth       int
	DocWindow      int
	DocOverlap     int
	Discover       discover.Options
	MergeEnabled   bool
	MergeRules     merge.Rules
	Merge          merge.Options
}

// OptionsFromConfig maps configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	rules := merge.DefaultRules()
	if len(cfg.Merge.MagicMethods) > 0 {
		rules.MagicMethods = cfg.Merge.MagicMethods
	}
	if len(cfg.Merge.GenericTerms) > 0 {
		rules.GenericTerms = cfg.Merge.GenericTerms
	}
	if len(cfg.Merge.TestRelated) > 0 {
		rules.TestRelated = cfg.Merge.TestRelated
	}
	rules.CustomPatterns = cfg.Merge.CustomPatterns
	rules.ExcludePrivate = cfg.EffectiveMergeExcludePrivate()
	rules.MinNameLength = cfg.EffectiveMergeMinNameLength()
	rules.MaxNameLength = cfg.EffectiveMergeMaxNameLength()

	return Options{
		Parallel:       cfg.EffectiveParallel(),
		BatchPause:     cfg.EffectiveBatchPause(),
		ChunkMaxTokens: cfg.EffectiveChunkMaxTokens(),
		MaxDepth:       cfg.EffectiveMaxDepth(),
		DocWindow:      cfg.EffectiveDocWindowTokens(),
		DocOverlap:     cfg.EffectiveDocOverlapTokens(),
		Discover: discover.Options{
			NoProcess:     cfg.Files.NoProcess,
			DocExtensions: cfg.Files.DocExtensions,
			SpecialFiles:  cfg.Files.SpecialFiles,
		},
		MergeEnabled: cfg.EffectiveMergeEnabled(),
		MergeRules:   rules,
		Merge: merge.Options{
			Threshold: cfg.EffectiveMergeThreshold(),
			BatchSize: cfg.EffectiveParallel(),
			Pause:     cfg.EffectiveMergePause(),
		},
	}
}

// Pipeline orchestrates one storage's graph creation.
type Pipeline struct {
	ctx   context.Context
	deps  Deps
	opts  Options
	runID string
	log   *slog.Logger

	extractor *extract.Extractor
	docs      *docingest.Ingestor
}

// Result summarizes a run.
type Result struct {
	RunID        string
	Discovered   int
	Unchanged    int
	Deleted      int
	DeleteFailed []string
	Docs         int
	Code         int
	Chunks       int
	Entities     int
	Relations    int
	Dropped      int
	Merges       int
	Elapsed      time.Duration
}

// New creates a Pipeline. Every call gets a fresh run id.
func New(ctx context.Context, deps Deps, opts Options) *Pipeline {
	if opts.Parallel <= 0 {
		opts.Parallel = 3
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = tokenizer.Heuristic{}
	}
	runID := uuid.NewString()
	p := &Pipeline{
		ctx:       ctx,
		deps:      deps,
		opts:      opts,
		runID:     runID,
		log:       slog.With("run", runID),
		extractor: extract.New(deps.Summarizer, opts.MaxDepth),
	}
	if deps.DocExtractor != nil {
		p.docs = docingest.New(deps.Store, deps.DocExtractor, deps.Tokenizer, opts.DocWindow, opts.DocOverlap)
	}
	return p
}

// RunID returns the id attached to this pipeline's log lines.
func (p *Pipeline) RunID() string { return p.runID }

// Run creates or updates the graph for readDir. Batches committed before a
// failure stay committed, and the manifest is saved either way so that a
// re-run only redoes the remaining work.
func (p *Pipeline) Run(readDir string) (res *Result, err error) {
	start := time.Now()
	res = &Result{RunID: p.runID}
	defer func() {
		res.Elapsed = time.Since(start)
		metrics.RecordRun(res.Elapsed, err)
	}()

	root, err := filepath.Abs(readDir)
	if err != nil {
		return res, fmt.Errorf("resolve read dir: %w", err)
	}
	if fi, err := os.Stat(root); err != nil {
		return res, fmt.Errorf("read dir: %w", err)
	} else if !fi.IsDir() {
		return res, fmt.Errorf("read dir %s: not a directory", root)
	}
	p.log.Info("pipeline.start", "read_dir", root, "storage", p.deps.StorageDir)

	files, err := discover.Discover(p.ctx, root, &p.opts.Discover)
	if err != nil {
		return res, fmt.Errorf("discover: %w", err)
	}
	res.Discovered = len(files)

	corpus, err := discover.ReadCorpus(p.ctx, files)
	if err != nil {
		return res, fmt.Errorf("read corpus: %w", err)
	}

	plan := reconcile.Plan(p.deps.StorageDir, corpus, root)
	res.Unchanged = len(plan.Unchanged)
	p.log.Info("pipeline.plan",
		"docs", len(plan.Process.Docs), "code", len(plan.Process.Code),
		"unchanged", len(plan.Unchanged), "stale", len(plan.Stale), "out_of_scope", len(plan.OutOfScope))

	defer p.saveManifest()

	if ids := plan.DeleteIDs(); len(ids) > 0 {
		res.DeleteFailed = reconcile.DeleteAll(p.ctx, p.deps.Store, ids)
		res.Deleted = len(ids) - len(res.DeleteFailed)
		metrics.RecordDeletions(res.Deleted, len(res.DeleteFailed))
		p.log.Info("pipeline.deleted", "deleted", res.Deleted, "failed", len(res.DeleteFailed))
	}

	if err := p.ingestDocs(plan.Process.Docs, res); err != nil {
		return res, err
	}
	codePaths, err := p.ingestCode(plan.Process.Code, res)
	if err != nil {
		return res, err
	}

	if p.opts.MergeEnabled {
		n, err := p.merge(codePaths)
		res.Merges = n
		if err != nil {
			return res, err
		}
	} else {
		p.log.Info("pipeline.merge_disabled")
	}

	p.logTotals(res)
	return res, nil
}

// MergeOnly runs a merge pass over every code entity not merged yet.
func (p *Pipeline) MergeOnly() (int, error) {
	paths, err := merge.CollectUnmergedCodePaths(p.ctx, p.deps.Store, p.opts.MergeRules)
	if err != nil {
		return 0, fmt.Errorf("collect unmerged: %w", err)
	}
	p.log.Info("pipeline.merge_only", "code_files", len(paths))
	return p.merge(paths)
}

func (p *Pipeline) merge(codePaths []string) (int, error) {
	if p.deps.Embedder == nil {
		return 0, fmt.Errorf("merge: no embedder configured")
	}
	m := merge.New(p.deps.Store, p.deps.Embedder, p.opts.MergeRules, p.opts.Merge)
	n, err := m.Merge(p.ctx, codePaths)
	metrics.RecordMerges(n)
	if err != nil {
		p.log.Error("pipeline.merge_failed", "merged", n, "err", err)
		return n, fmt.Errorf("merge: %w", err)
	}
	p.log.Info("pipeline.merged", "merges", n)
	return n, nil
}

// saveManifest snapshots chunk provenance for the next run's reconciliation.
// It runs even after a failed or cancelled run.
func (p *Pipeline) saveManifest() {
	m, err := p.deps.Store.Manifest(context.WithoutCancel(p.ctx))
	if err != nil {
		p.log.Error("pipeline.manifest_read", "err", err)
		return
	}
	if err := reconcile.SaveManifest(p.deps.StorageDir, m); err != nil {
		p.log.Error("pipeline.manifest_save", "err", err)
		return
	}
	p.log.Debug("pipeline.manifest_saved", "chunks", len(m))
}

func (p *Pipeline) logTotals(res *Result) {
	st, err := p.deps.Store.Stats(p.ctx)
	if err != nil {
		p.log.Warn("pipeline.stats", "err", err)
		return
	}
	p.log.Info("pipeline.done",
		"docs", res.Docs, "code", res.Code, "merges", res.Merges,
		"total_entities", st.Entities, "total_relationships", st.Relationships)
}

// batches splits items into consecutive groups of size n.
func batches[T any](items []T, n int) [][]T {
	var out [][]T
	for chunk := range slices.Chunk(items, n) {
		out = append(out, chunk)
	}
	return out
}

// pause sleeps between batches; it is a no-op after the last one.
func (p *Pipeline) pause(i, total int) error {
	if i >= total-1 || p.opts.BatchPause <= 0 {
		return nil
	}
	p.log.Debug("pipeline.batch_pause", "seconds", p.opts.BatchPause.Seconds())
	t := time.NewTimer(p.opts.BatchPause)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-t.C:
		return nil
	}
}
