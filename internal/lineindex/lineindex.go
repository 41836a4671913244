// Package lineindex maps byte offsets to 1-based line numbers.
package lineindex

import (
	"sort"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Offsets holds the byte offset at which every line starts. Offsets[0] is always 0.
type Offsets []int

// Build records a line start after every '\n', except one that ends the buffer.
func Build(src []byte) Offsets {
	offsets := Offsets{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// Line returns the 1-based line containing byte b.
func (o Offsets) Line(b int) int {
	// rightmost offset <= b
	return sort.Search(len(o), func(i int) bool { return o[i] > b })
}

// Range returns the inclusive 1-based line range of the exclusive-end byte span [start, end).
func (o Offsets) Range(start, end int) (int, int) {
	last := end - 1
	if last < 0 {
		last = 0
	}
	return o.Line(start), o.Line(last)
}

// NodeRange is Range over a syntax node's byte span.
func (o Offsets) NodeRange(node *tree_sitter.Node) (int, int) {
	return o.Range(int(node.StartByte()), int(node.EndByte()))
}
