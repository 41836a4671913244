// Package graph holds the records exchanged between the extraction pipeline
// and the graph store.
package graph

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Sep joins multi-valued fields (merged descriptions and provenance paths)
// at the store boundary.
const Sep = "<SEP>"

// Id prefixes.
const (
	DocPrefix   = "doc-"
	ChunkPrefix = "chunk-"
)

// Chunk is a token-bounded text unit cut from one syntax subtree or document window.
type Chunk struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
	FilePath string `json:"file_path"`
}

// Entity is a named graph node. Name is the natural key.
type Entity struct {
	Name        string `json:"entity_name"`
	Type        string `json:"entity_type"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
	// Paths lists contributing file paths in merge order; a fresh entity has one.
	Paths []string `json:"file_paths"`
}

// FilePath returns the provenance paths in their flat, Sep-joined form.
func (e Entity) FilePath() string {
	return JoinPaths(e.Paths)
}

// Merged reports whether the entity already absorbed other entities.
func (e Entity) Merged() bool {
	return len(e.Paths) > 1
}

// Relationship is a directed parent -> child edge.
type Relationship struct {
	SrcID       string  `json:"src_id"`
	TgtID       string  `json:"tgt_id"`
	Description string  `json:"description"`
	Keywords    string  `json:"keywords"`
	Weight      float64 `json:"weight"`
	SourceID    string  `json:"source_id"`
	FilePath    string  `json:"file_path"`
}

// TargetData is what a merge writes onto the surviving entity.
type TargetData struct {
	Description string
	Paths       []string
}

// MergeOperation collapses Sources into Target.
type MergeOperation struct {
	Sources []string
	Target  string
	Data    TargetData
}

// ManifestEntry is the persisted per-chunk provenance used for reconciliation.
type ManifestEntry struct {
	FilePath  string `json:"file_path"`
	FullDocID string `json:"full_doc_id"`
}

// CustomGraph is one file's worth of extracted records.
type CustomGraph struct {
	Chunks        []Chunk        `json:"chunks"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Empty reports whether there is nothing to write.
func (g CustomGraph) Empty() bool {
	return len(g.Chunks) == 0 && len(g.Entities) == 0 && len(g.Relationships) == 0
}

// DocStatus is the processing-state record kept per full document.
type DocStatus struct {
	Status         string            `json:"status"`
	ChunksCount    int               `json:"chunks_count"`
	Content        string            `json:"content"`
	ContentSummary string            `json:"content_summary"`
	ContentLength  int               `json:"content_length"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
	FilePath       string            `json:"file_path"`
	ChunksList     []string          `json:"chunks_list"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// StatusProcessed marks a fully ingested document.
const StatusProcessed = "processed"

// SplitPaths splits a Sep-joined path list, dropping empty fragments.
func SplitPaths(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, Sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPaths is the inverse of SplitPaths.
func JoinPaths(paths []string) string {
	return strings.Join(paths, Sep)
}

// HashID returns prefix + hex(md5(content)).
func HashID(content, prefix string) string {
	sum := md5.Sum([]byte(content))
	return prefix + hex.EncodeToString(sum[:])
}

// ChunkID is the content id of a chunk, as listed in a document's chunks_list.
func ChunkID(content string) string {
	return HashID(content, ChunkPrefix)
}

// ChunkKey is the storage and manifest key of a chunk. The same text in two
// files yields two keys.
func ChunkKey(filePath, content string) string {
	return HashID(filePath+"\x00"+content, ChunkPrefix)
}

// EntityName builds the "<basename>:<definition>" key of a code entity.
func EntityName(filePath, definition string) string {
	return filepath.Base(filePath) + ":" + definition
}

// SourceID builds the "file:<basename>_line:<start>-<end>" key of a code chunk.
func SourceID(filePath string, startLine, endLine int) string {
	return fmt.Sprintf("file:%s_line:%d-%d", filepath.Base(filePath), startLine, endLine)
}

// IsColonName reports whether name has the "<basename>:<definition>" shape:
// it contains ':' and neither starts nor ends with it.
func IsColonName(name string) bool {
	return strings.Contains(name, ":") && !strings.HasPrefix(name, ":") && !strings.HasSuffix(name, ":")
}

// DefinitionSuffix returns what follows the first ':' of name, or name itself.
func DefinitionSuffix(name string) string {
	if _, after, ok := strings.Cut(name, ":"); ok {
		return after
	}
	return name
}
