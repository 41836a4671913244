// Package chunker splits a syntax tree into token-bounded units.
package chunker

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/repo-graphrag/internal/parser"
	"github.com/DeusData/repo-graphrag/internal/tokenizer"
)

// DefaultMaxTokens is the chunk budget used when none is configured.
const DefaultMaxTokens = 2048

// Unit is an accepted chunk: the subtree root and its trimmed text.
type Unit struct {
	Node *tree_sitter.Node
	Text string
	// Oversized marks a childless node whose text alone exceeds the budget.
	Oversized bool
}

// Chunk walks root's children breadth-first. A node whose text fits within
// maxTokens becomes a unit and is not descended into; a larger node is
// replaced by its children. The root itself is never a unit.
func Chunk(root *tree_sitter.Node, src []byte, tok tokenizer.Tokenizer, maxTokens int) ([]Unit, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	queue := parser.Children(root)
	var units []Unit
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		text, err := parser.DecodeNode(node, src)
		if err != nil {
			return nil, fmt.Errorf("chunk %s at byte %d: %w", node.Kind(), node.StartByte(), err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if tok.Count(text) <= maxTokens {
			units = append(units, Unit{Node: node, Text: text})
			continue
		}

		children := parser.Children(node)
		if len(children) == 0 {
			units = append(units, Unit{Node: node, Text: text, Oversized: true})
			continue
		}
		queue = append(queue, children...)
	}
	return units, nil
}
