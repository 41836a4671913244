// Package merge folds code entities into the document entities that name
// them, using embedding similarity of the names.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/repo-graphrag/internal/graph"
	"github.com/DeusData/repo-graphrag/internal/lang"
)

// Defaults mirror the stock configuration.
const (
	DefaultThreshold = 0.95
	DefaultBatchSize = 3
	DefaultPause     = 500 * time.Millisecond
	maxNeighbors     = 10
)

// Store is the subset of the graph store the merger needs.
type Store interface {
	ListAllEntityNames(ctx context.Context) ([]string, error)
	GetNode(ctx context.Context, name string) (*graph.Entity, error)
	HasNode(ctx context.Context, name string) (bool, error)
	MergeEntities(ctx context.Context, sources []string, target string, data graph.TargetData) error
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tune a Merger. Zero Threshold and BatchSize select the defaults.
type Options struct {
	Threshold float64
	BatchSize int
	Pause     time.Duration // after each executed merge; zero disables
}

// Merger runs merge passes against a graph store.
type Merger struct {
	store     Store
	embedder  Embedder
	rules     Rules
	threshold float32
	batchSize int
	pause     time.Duration
}

// New creates a Merger.
func New(s Store, e Embedder, rules Rules, opts Options) *Merger {
	m := &Merger{
		store:     s,
		embedder:  e,
		rules:     rules,
		threshold: float32(opts.Threshold),
		batchSize: opts.BatchSize,
		pause:     opts.Pause,
	}
	if opts.Threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultBatchSize
	}
	if m.pause < 0 {
		m.pause = 0
	}
	return m
}

type candidate struct {
	name        string
	description string
}

type match struct {
	doc   candidate
	codes []candidate
}

// op is a merge operation plus the names needed to rebuild its path list.
type op struct {
	graph.MergeOperation
	codeNames []string
}

// Merge runs one pass. Code entities are candidates only when their file is
// in currentCodePaths; every merge target is a document entity. It returns
// the number of merges executed.
func (m *Merger) Merge(ctx context.Context, currentCodePaths []string) (int, error) {
	current := make(map[string]struct{}, len(currentCodePaths))
	for _, p := range currentCodePaths {
		current[p] = struct{}{}
	}

	codes, docs, err := m.classify(ctx, current)
	if err != nil {
		return 0, err
	}
	slog.Info("merge.candidates", "code", len(codes), "docs", len(docs))
	if len(codes) == 0 || len(docs) == 0 {
		slog.Info("merge.skip", "reason", "no candidates")
		return 0, nil
	}

	matches, err := m.match(ctx, codes, docs)
	if err != nil {
		return 0, err
	}

	total := 0
	batches := (len(matches) + m.batchSize - 1) / m.batchSize
	slog.Info("merge.start", "pairs", len(matches), "batches", batches)

	for start := 0; start < len(matches); start += m.batchSize {
		end := min(start+m.batchSize, len(matches))
		ops, err := buildOps(ctx, matches[start:end])
		if err != nil {
			return total, err
		}

		merged := 0
		for _, o := range ops {
			ok, err := m.execute(ctx, o)
			if err != nil {
				slog.Error("merge.failed", "target", o.Target, "err", err)
				return total, err
			}
			if ok {
				merged++
				total++
			}
		}
		slog.Info("merge.batch", "batch", start/m.batchSize+1, "of", batches, "merged", merged, "total", total)
	}

	slog.Info("merge.done", "merged", total)
	return total, nil
}

func (m *Merger) classify(ctx context.Context, current map[string]struct{}) (codes, docs []candidate, err error) {
	names, err := m.store.ListAllEntityNames(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list entities: %w", err)
	}
	for _, name := range names {
		if m.rules.ShouldExclude(name) {
			continue
		}
		e, err := m.store.GetNode(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			continue
		}

		c := candidate{name: name, description: e.Description}
		colon := graph.IsColonName(name)
		_, inRun := current[e.FilePath()]
		switch {
		case inRun && !e.Merged() && colon:
			codes = append(codes, c)
		case !colon || e.Merged():
			docs = append(docs, c)
		}
	}
	return codes, docs, nil
}

// match embeds both candidate sets and pairs each document entity with the
// code entities above the similarity threshold, best first.
func (m *Merger) match(ctx context.Context, codes, docs []candidate) ([]match, error) {
	codeTexts := make([]string, len(codes))
	for i, c := range codes {
		codeTexts[i] = graph.DefinitionSuffix(c.name)
	}
	docTexts := make([]string, len(docs))
	for i, d := range docs {
		docTexts[i] = d.name
	}

	codeVecs, err := m.embedder.Embed(ctx, codeTexts)
	if err != nil {
		return nil, fmt.Errorf("embed code names: %w", err)
	}
	docVecs, err := m.embedder.Embed(ctx, docTexts)
	if err != nil {
		return nil, fmt.Errorf("embed doc names: %w", err)
	}
	if len(codeVecs) != len(codes) || len(docVecs) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d/%d vectors for %d/%d names",
			len(codeVecs), len(docVecs), len(codes), len(docs))
	}
	if dim := len(codeVecs[0]); dim != len(docVecs[0]) {
		return nil, fmt.Errorf("embedding dimension mismatch: %d vs %d", dim, len(docVecs[0]))
	}

	normalizeL2(codeVecs)
	normalizeL2(docVecs)

	var out []match
	hits := searchIP(codeVecs, docVecs, min(len(codes), maxNeighbors))
	for di, row := range hits {
		var matched []candidate
		for _, h := range row {
			if h.Score >= m.threshold {
				matched = append(matched, codes[h.Index])
			}
		}
		if len(matched) > 0 {
			out = append(out, match{doc: docs[di], codes: matched})
		}
	}
	return out, nil
}

// buildOps turns one batch of matches into merge operations concurrently.
// Results keep the batch order.
func buildOps(ctx context.Context, batch []match) ([]op, error) {
	ops := make([]op, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, mt := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ops[i] = buildOp(mt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ops, nil
}

func buildOp(mt match) op {
	desc := "\n" + mt.doc.description
	sources := []string{mt.doc.name}
	codeNames := make([]string, 0, len(mt.codes))
	for _, c := range mt.codes {
		file, _, _ := strings.Cut(c.name, ":")
		desc += graph.Sep + file + ":" + c.description
		sources = append(sources, c.name)
		codeNames = append(codeNames, c.name)
	}
	return op{
		MergeOperation: graph.MergeOperation{
			Sources: sources,
			Target:  mt.doc.name,
			Data:    graph.TargetData{Description: desc},
		},
		codeNames: codeNames,
	}
}

// execute applies o when at least two of its sources still exist. The
// target's path list is rebuilt as the document's own paths followed by
// each surviving code entity's paths, in match order.
func (m *Merger) execute(ctx context.Context, o op) (bool, error) {
	var valid []string
	for _, name := range o.Sources {
		ok, err := m.store.HasNode(ctx, name)
		if err != nil {
			return false, err
		}
		if ok {
			valid = append(valid, name)
		}
	}
	if len(valid) <= 1 {
		slog.Debug("merge.skip_op", "target", o.Target, "surviving", len(valid))
		return false, nil
	}

	var paths []string
	doc, err := m.store.GetNode(ctx, o.Target)
	if err != nil {
		return false, err
	}
	if doc != nil {
		paths = append(paths, doc.Paths...)
	}
	for _, name := range o.codeNames {
		e, err := m.store.GetNode(ctx, name)
		if err != nil {
			return false, err
		}
		if e != nil {
			paths = append(paths, e.Paths...)
		}
	}
	data := o.Data
	data.Paths = paths

	if err := m.store.MergeEntities(ctx, valid, o.Target, data); err != nil {
		return false, fmt.Errorf("merge %v into %s: %w", valid, o.Target, err)
	}
	slog.Debug("merge.op", "target", o.Target, "sources", len(valid))

	if err := sleep(ctx, m.pause); err != nil {
		return true, err
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CollectUnmergedCodePaths returns the file paths of every code entity that
// has not been merged yet, for merge passes run outside a create run.
func CollectUnmergedCodePaths(ctx context.Context, s Store, rules Rules) ([]string, error) {
	names, err := s.ListAllEntityNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		if rules.ShouldExclude(name) || !graph.IsColonName(name) {
			continue
		}
		e, err := s.GetNode(ctx, name)
		if err != nil {
			return nil, err
		}
		if e == nil {
			slog.Warn("merge.entity_missing", "name", name)
			continue
		}
		p := e.FilePath()
		if p == "" || e.Merged() || !lang.IsCode(filepath.Ext(p)) {
			continue
		}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}
