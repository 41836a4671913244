package pipeline

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/repo-graphrag/internal/chunker"
	"github.com/DeusData/repo-graphrag/internal/graph"
	"github.com/DeusData/repo-graphrag/internal/lang"
	"github.com/DeusData/repo-graphrag/internal/lineindex"
	"github.com/DeusData/repo-graphrag/internal/metrics"
	"github.com/DeusData/repo-graphrag/internal/parser"
	"github.com/DeusData/repo-graphrag/internal/reconcile"
	"github.com/DeusData/repo-graphrag/internal/store"
)

// codeResult is one file's extracted graph, ready to be written.
type codeResult struct {
	path    string
	content string
	graph   graph.CustomGraph
	elapsed time.Duration
}

// ingestCode processes code files in batches of Parallel. Files in a batch
// are extracted concurrently and written in path order once the whole batch
// has finished. It returns the paths it processed.
func (p *Pipeline) ingestCode(code map[string][]byte, res *Result) ([]string, error) {
	if len(code) == 0 {
		return nil, nil
	}
	paths := slices.Sorted(maps.Keys(code))
	groups := batches(paths, p.opts.Parallel)
	p.log.Info("pipeline.code.start", "files", len(paths), "batches", len(groups))

	for bi, group := range groups {
		p.log.Info("pipeline.code.batch", "index", bi+1, "total", len(groups), "files", len(group))
		results := make([]*codeResult, len(group))
		g, gctx := errgroup.WithContext(p.ctx)
		for i, path := range group {
			g.Go(func() error {
				r, err := p.extractFile(gctx, path, code[path])
				if err != nil {
					p.log.Error("pipeline.code.failed", "path", path, "err", err)
					return fmt.Errorf("code %s: %w", path, err)
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, r := range results {
			if err := p.writeCode(r, res); err != nil {
				p.log.Error("pipeline.code.write_failed", "path", r.path, "err", err)
				return nil, err
			}
		}
		if err := p.pause(bi, len(groups)); err != nil {
			return nil, err
		}
	}
	p.log.Info("pipeline.code.done", "files", res.Code)
	return paths, nil
}

// extractFile parses one code file, chunks it and extracts entities and
// relationships from every chunk.
func (p *Pipeline) extractFile(ctx context.Context, path string, src []byte) (*codeResult, error) {
	start := time.Now()
	spec := lang.ForExtension(filepath.Ext(path))
	if spec == nil {
		return nil, fmt.Errorf("no language for %s", filepath.Ext(path))
	}
	if !utf8.Valid(src) {
		return nil, parser.ErrDecode
	}
	tree, err := parser.Parse(spec.Language, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	offsets := lineindex.Build(src)
	units, err := chunker.Chunk(tree.RootNode(), src, p.deps.Tokenizer, p.opts.ChunkMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}

	r := &codeResult{path: path, content: string(src)}
	for _, u := range units {
		startLine, endLine := offsets.NodeRange(u.Node)
		sourceID := graph.SourceID(path, startLine, endLine)
		r.graph.Chunks = append(r.graph.Chunks, graph.Chunk{
			Content:  u.Text,
			SourceID: sourceID,
			FilePath: path,
		})
		ents, rels, err := p.extractor.Extract(ctx, u.Node, spec.Definitions, src, "", sourceID, path, offsets)
		if err != nil {
			return nil, err
		}
		r.graph.Entities = append(r.graph.Entities, ents...)
		r.graph.Relationships = append(r.graph.Relationships, rels...)
	}
	r.elapsed = time.Since(start)
	p.log.Debug("pipeline.code.extracted", "path", path,
		"chunks", len(r.graph.Chunks), "entities", len(r.graph.Entities), "relationships", len(r.graph.Relationships))
	return r, nil
}

// writeCode stores one file's graph and, when it produced chunks, its full
// document and processed status.
func (p *Pipeline) writeCode(r *codeResult, res *Result) error {
	if r.graph.Empty() {
		p.log.Info("pipeline.code.empty", "path", r.path)
		return nil
	}
	docID := reconcile.CodeID([]byte(r.content))
	st, err := p.deps.Store.InsertCustomGraph(p.ctx, docID, r.graph)
	if err != nil {
		return err
	}
	res.Code++
	res.add(st.Chunks, st.Entities, st.Relationships, st.Dropped)
	metrics.RecordFile("code", r.elapsed)

	if len(r.graph.Chunks) == 0 {
		return nil
	}
	chunkIDs := make([]string, len(r.graph.Chunks))
	for i, c := range r.graph.Chunks {
		chunkIDs[i] = graph.ChunkID(c.Content)
	}
	now := store.Now()
	err = p.deps.Store.UpsertStatus(p.ctx, docID, graph.DocStatus{
		Status:         graph.StatusProcessed,
		ChunksCount:    len(chunkIDs),
		Content:        r.content,
		ContentSummary: "Code file: " + filepath.Base(r.path),
		ContentLength:  len(r.content),
		CreatedAt:      now,
		UpdatedAt:      now,
		FilePath:       r.path,
		ChunksList:     chunkIDs,
		Metadata:       map[string]string{"file_type": "code", "processed_by": "code_processor"},
	})
	if err != nil {
		return err
	}
	if err := p.deps.Store.UpsertFullDoc(p.ctx, docID, r.content, r.path); err != nil {
		return err
	}
	p.log.Info("pipeline.code.saved", "path", r.path, "doc", docID,
		"chunks", st.Chunks, "entities", st.Entities, "relationships", st.Relationships)
	return nil
}
