// Package extract turns syntax subtrees into graph entities and
// parent/child relationships.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/repo-graphrag/internal/graph"
	"github.com/DeusData/repo-graphrag/internal/lang"
	"github.com/DeusData/repo-graphrag/internal/lineindex"
	"github.com/DeusData/repo-graphrag/internal/parser"
)

// DefaultMaxDepth bounds the traversal below the extraction root.
const DefaultMaxDepth = 30

// Summarizer describes a code fragment in natural language.
type Summarizer interface {
	Summarize(ctx context.Context, code string) (string, error)
}

// Extractor walks subtrees and summarizes every definition it finds.
type Extractor struct {
	Summarizer Summarizer
	MaxDepth   int
}

// New returns an Extractor; maxDepth <= 0 selects DefaultMaxDepth.
func New(s Summarizer, maxDepth int) *Extractor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Extractor{Summarizer: s, MaxDepth: maxDepth}
}

type queued struct {
	node   *tree_sitter.Node
	parent string
	depth  int
}

// Extract walks node breadth-first. Nodes at MaxDepth are visited but not
// expanded. A definition node whose name child cannot be found yields no
// entity and passes the inherited parent name on to its children.
func (x *Extractor) Extract(
	ctx context.Context,
	node *tree_sitter.Node,
	defs lang.DefinitionSpec,
	src []byte,
	parent, sourceID, filePath string,
	offsets lineindex.Offsets,
) ([]graph.Entity, []graph.Relationship, error) {
	var (
		entities []graph.Entity
		rels     []graph.Relationship
	)
	base := filepath.Base(filePath)

	queue := []queued{{node: node, parent: parent}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		cur := queue[0]
		queue = queue[1:]

		text, err := parser.DecodeNode(cur.node, src)
		if err != nil {
			return nil, nil, fmt.Errorf("extract %s: %w", base, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		definition := cur.parent
		if nameKind, ok := defs.NameKind(cur.node.Kind()); ok {
			name, err := findName(cur.node, nameKind, src)
			if err != nil {
				return nil, nil, fmt.Errorf("extract %s: %w", base, err)
			}
			if name != "" {
				definition = name
				entityName := graph.EntityName(filePath, name)

				desc, err := x.Summarizer.Summarize(ctx, text)
				if err != nil {
					return nil, nil, fmt.Errorf("summarize %s: %w", entityName, err)
				}
				entities = append(entities, graph.Entity{
					Name:        entityName,
					Type:        cur.node.Kind(),
					Description: desc,
					SourceID:    sourceID,
					Paths:       []string{filePath},
				})

				parentName := graph.EntityName(filePath, cur.parent)
				if cur.parent != "" && parentName != entityName {
					start, end := offsets.NodeRange(cur.node)
					rels = append(rels, graph.Relationship{
						SrcID:       parentName,
						TgtID:       entityName,
						Description: fmt.Sprintf("The %s of %s located in lines %d through %d.", name, cur.parent, start, end),
						Keywords:    cur.parent + " " + name,
						Weight:      1.0,
						SourceID:    sourceID,
						FilePath:    filePath,
					})
				}
			}
		}

		if cur.depth < x.MaxDepth {
			for _, child := range parser.Children(cur.node) {
				queue = append(queue, queued{node: child, parent: definition, depth: cur.depth + 1})
			}
		}
	}
	return entities, rels, nil
}

// findName returns the trimmed text of the first descendant of kind nameKind,
// searching breadth-first, or "" when there is none.
func findName(node *tree_sitter.Node, nameKind string, src []byte) (string, error) {
	queue := parser.Children(node)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.Kind() == nameKind {
			text, err := parser.DecodeNode(n, src)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(text), nil
		}
		queue = append(queue, parser.Children(n)...)
	}
	return "", nil
}
