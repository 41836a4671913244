// Package docingest writes documentation files into the graph store: the
// text is split into overlapping token windows and a model names the
// entities each window mentions.
package docingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeusData/repo-graphrag/internal/graph"
	"github.com/DeusData/repo-graphrag/internal/llm"
	"github.com/DeusData/repo-graphrag/internal/reconcile"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/tokenizer"
)

// Window defaults.
const (
	DefaultWindowTokens  = 1200
	DefaultOverlapTokens = 100
)

// Store is the subset of the graph store ingestion writes to.
type Store interface {
	InsertCustomGraph(ctx context.Context, docID string, g graph.CustomGraph) (store.InsertStats, error)
	UpsertFullDoc(ctx context.Context, id, content, filePath string) error
	UpsertStatus(ctx context.Context, id string, st graph.DocStatus) error
}

// Extractor names the entities in a piece of text.
type Extractor interface {
	Extract(ctx context.Context, text string) (llm.Extraction, error)
}

// Ingestor turns documents into chunks, entities and relationships.
type Ingestor struct {
	store     Store
	extractor Extractor
	tok       tokenizer.Tokenizer
	window    int
	overlap   int
}

// New creates an Ingestor. Non-positive window sizes select the defaults.
func New(s Store, x Extractor, tok tokenizer.Tokenizer, window, overlap int) *Ingestor {
	if window <= 0 {
		window = DefaultWindowTokens
	}
	if overlap < 0 || overlap >= window {
		overlap = DefaultOverlapTokens
	}
	return &Ingestor{store: s, extractor: x, tok: tok, window: window, overlap: overlap}
}

// Result describes one ingested document.
type Result struct {
	DocID string
	Stats store.InsertStats
}

// Ingest stores the document at path. A document that is blank after
// normalization is skipped and yields a zero Result.
func (in *Ingestor) Ingest(ctx context.Context, path, text string) (Result, error) {
	content := reconcile.NormalizeDoc(text)
	if content == "" {
		slog.Info("docingest.skip_empty", "path", path)
		return Result{}, nil
	}
	docID := reconcile.DocID(text)

	windows := Windows(content, in.tok, in.window, in.overlap)
	g := graph.CustomGraph{}
	entities := map[string]int{}
	seenRel := map[[2]string]bool{}
	var chunkIDs []string

	for _, w := range windows {
		chunkID := graph.ChunkID(w)
		chunkIDs = append(chunkIDs, chunkID)
		g.Chunks = append(g.Chunks, graph.Chunk{Content: w, SourceID: chunkID, FilePath: path})

		ex, err := in.extractor.Extract(ctx, w)
		if err != nil {
			return Result{}, fmt.Errorf("extract %s: %w", path, err)
		}
		for _, e := range ex.Entities {
			if i, ok := entities[e.Name]; ok {
				prev := &g.Entities[i]
				if e.Description != "" && !strings.Contains(prev.Description, e.Description) {
					prev.Description = strings.TrimSpace(prev.Description + "\n" + e.Description)
				}
				continue
			}
			entities[e.Name] = len(g.Entities)
			g.Entities = append(g.Entities, graph.Entity{
				Name:        e.Name,
				Type:        e.Type,
				Description: e.Description,
				SourceID:    chunkID,
				Paths:       []string{path},
			})
		}
		for _, r := range ex.Relationships {
			key := [2]string{r.Source, r.Target}
			if seenRel[key] {
				continue
			}
			seenRel[key] = true
			g.Relationships = append(g.Relationships, graph.Relationship{
				SrcID:       r.Source,
				TgtID:       r.Target,
				Description: r.Description,
				Keywords:    r.Keywords,
				Weight:      1.0,
				SourceID:    chunkID,
				FilePath:    path,
			})
		}
	}

	if err := in.store.UpsertFullDoc(ctx, docID, content, path); err != nil {
		return Result{}, err
	}
	stats, err := in.store.InsertCustomGraph(ctx, docID, g)
	if err != nil {
		return Result{}, err
	}
	now := store.Now()
	err = in.store.UpsertStatus(ctx, docID, graph.DocStatus{
		Status:         graph.StatusProcessed,
		ChunksCount:    len(chunkIDs),
		Content:        content,
		ContentSummary: summary(content),
		ContentLength:  len(content),
		CreatedAt:      now,
		UpdatedAt:      now,
		FilePath:       path,
		ChunksList:     chunkIDs,
		Metadata:       map[string]string{"file_type": "document", "processed_by": "document_processor"},
	})
	if err != nil {
		return Result{}, err
	}
	slog.Info("docingest.done", "path", path, "windows", len(windows), "entities", stats.Entities)
	return Result{DocID: docID, Stats: stats}, nil
}

func summary(content string) string {
	r := []rune(content)
	if len(r) <= 100 {
		return content
	}
	return string(r[:100]) + "..."
}

// Windows splits text into windows of at most size tokens by accumulating
// whole lines. Each window after the first starts with trailing lines of
// the previous one totalling at most overlap tokens. A single line larger
// than size forms a window of its own.
func Windows(text string, tok tokenizer.Tokenizer, size, overlap int) []string {
	lines := strings.SplitAfter(text, "\n")
	var (
		out    []string
		cur    []string
		counts []int
		total  int
		fresh  bool // cur holds lines not yet emitted
	)
	flush := func() {
		if fresh {
			if w := strings.TrimSpace(strings.Join(cur, "")); w != "" {
				out = append(out, w)
			}
		}
		// keep a tail of at most overlap tokens
		keep, kept := len(cur), 0
		for keep > 0 && kept+counts[keep-1] <= overlap {
			keep--
			kept += counts[keep]
		}
		cur, counts, total = cur[keep:], counts[keep:], kept
		fresh = false
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		n := tok.Count(line)
		if total+n > size && fresh {
			flush()
			for total+n > size && len(cur) > 0 {
				total -= counts[0]
				cur, counts = cur[1:], counts[1:]
			}
		}
		cur = append(cur, line)
		counts = append(counts, n)
		total += n
		fresh = true
	}
	if fresh {
		flush()
	}
	return out
}
