package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/repo-graphrag/internal/docingest"
	"github.com/DeusData/repo-graphrag/internal/metrics"
)

// ingestDocs runs document ingestion in batches of Parallel. Each document
// is windowed, extracted and written by docingest; a failure aborts the run.
func (p *Pipeline) ingestDocs(docs map[string]string, res *Result) error {
	if len(docs) == 0 {
		return nil
	}
	if p.docs == nil {
		return fmt.Errorf("ingest docs: no document extractor configured")
	}
	paths := slices.Sorted(maps.Keys(docs))
	groups := batches(paths, p.opts.Parallel)
	p.log.Info("pipeline.docs.start", "files", len(paths), "batches", len(groups))

	for bi, group := range groups {
		p.log.Info("pipeline.docs.batch", "index", bi+1, "total", len(groups), "files", len(group))
		results := make([]docingest.Result, len(group))
		g, gctx := errgroup.WithContext(p.ctx)
		for i, path := range group {
			g.Go(func() error {
				start := time.Now()
				r, err := p.docs.Ingest(gctx, path, docs[path])
				if err != nil {
					p.log.Error("pipeline.docs.failed", "path", path, "err", err)
					return fmt.Errorf("document %s: %w", path, err)
				}
				results[i] = r
				if r.DocID != "" {
					metrics.RecordFile("doc", time.Since(start))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, r := range results {
			if r.DocID == "" {
				continue
			}
			res.Docs++
			res.add(r.Stats.Chunks, r.Stats.Entities, r.Stats.Relationships, r.Stats.Dropped)
		}
		if err := p.pause(bi, len(groups)); err != nil {
			return err
		}
	}
	p.log.Info("pipeline.docs.done", "files", res.Docs)
	return nil
}

func (r *Result) add(chunks, entities, relations, dropped int) {
	r.Chunks += chunks
	r.Entities += entities
	r.Relations += relations
	r.Dropped += dropped
	metrics.RecordGraph(chunks, entities, relations, dropped)
}
