// Package reconcile compares the current corpus against the manifest of a
// previous run and decides which files to process and which documents to
// delete from the graph store.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

// ManifestFile is the manifest's file name inside a storage directory.
const ManifestFile = "kv_store_text_chunks.json"

// Manifest maps chunk keys to the file and document they came from.
type Manifest map[string]graph.ManifestEntry

// Corpus is the current set of files keyed by path.
type Corpus struct {
	Docs map[string]string // document text as read
	Code map[string][]byte // raw source bytes
}

// Len returns the number of files in the corpus.
func (c Corpus) Len() int { return len(c.Docs) + len(c.Code) }

// Result is the outcome of one reconciliation.
type Result struct {
	Process    Corpus
	Unchanged  []string
	Stale      []string // doc ids of edited, moved or removed files
	OutOfScope []string // doc ids of files outside the scan root
}

// DeleteIDs returns the union of out-of-scope and stale doc ids, sorted.
func (r Result) DeleteIDs() []string {
	set := make(map[string]struct{}, len(r.Stale)+len(r.OutOfScope))
	for _, id := range r.Stale {
		set[id] = struct{}{}
	}
	for _, id := range r.OutOfScope {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NormalizeDoc strips NUL bytes and surrounding whitespace from document text.
func NormalizeDoc(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
}

// DocID returns the id of a document. Document text is normalized first.
func DocID(text string) string {
	return graph.HashID(NormalizeDoc(text), graph.DocPrefix)
}

// CodeID returns the id of a code file. Whitespace in code is significant,
// so the text is hashed as is.
func CodeID(src []byte) string {
	return graph.HashID(string(src), graph.DocPrefix)
}

// InScope reports whether path lies under root. An empty root accepts everything.
func InScope(path, root string) bool {
	if root == "" {
		return true
	}
	root = strings.TrimSuffix(root, string(filepath.Separator))
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// Reconcile classifies every manifest entry as unchanged, stale or out of
// scope and returns the files that still need processing. A nil manifest
// means a fresh storage: everything is processed and nothing deleted.
func Reconcile(prior Manifest, current Corpus, scopeRoot string) Result {
	if prior == nil {
		return Result{Process: current}
	}

	ids := make(map[string]string, current.Len())
	for p, text := range current.Docs {
		ids[p] = DocID(text)
	}
	for p, src := range current.Code {
		ids[p] = CodeID(src)
	}

	unchanged := make(map[string]struct{})
	stale := make(map[string]struct{})
	outOfScope := make(map[string]struct{})

	for _, e := range prior {
		if !InScope(e.FilePath, scopeRoot) {
			outOfScope[e.FullDocID] = struct{}{}
			continue
		}
		if id, ok := ids[e.FilePath]; ok && id == e.FullDocID {
			unchanged[e.FilePath] = struct{}{}
			continue
		}
		stale[e.FullDocID] = struct{}{}
	}

	// Identical files share a doc id. Deleting it removes the surviving
	// copy's records too, so that copy is processed again.
	for p := range unchanged {
		_, isStale := stale[ids[p]]
		_, isOut := outOfScope[ids[p]]
		if isStale || isOut {
			delete(unchanged, p)
		}
	}

	res := Result{
		Process: Corpus{
			Docs: make(map[string]string),
			Code: make(map[string][]byte),
		},
		Unchanged:  sortedKeys(unchanged),
		Stale:      sortedKeys(stale),
		OutOfScope: sortedKeys(outOfScope),
	}
	for p, text := range current.Docs {
		if _, ok := unchanged[p]; !ok {
			res.Process.Docs[p] = text
		}
	}
	for p, src := range current.Code {
		if _, ok := unchanged[p]; !ok {
			res.Process.Code[p] = src
		}
	}
	return res
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadManifest reads the manifest from storageDir. A missing file returns
// (nil, nil), meaning a fresh storage.
func LoadManifest(storageDir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(storageDir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m := Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// SaveManifest writes the manifest atomically (temp file + rename).
func SaveManifest(storageDir string, m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(storageDir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Deleter removes everything a document contributed to the graph.
type Deleter interface {
	DeleteByDocID(ctx context.Context, id string) error
}

// DeleteAll deletes each id in turn. A failure is logged and the loop goes
// on; the failed ids are returned.
func DeleteAll(ctx context.Context, d Deleter, ids []string) (failed []string) {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			slog.Warn("reconcile.delete_cancelled", "remaining", len(ids)-i)
			return append(failed, ids[i:]...)
		}
		if err := d.DeleteByDocID(ctx, id); err != nil {
			slog.Error("reconcile.delete_failed", "doc", id, "err", err)
			failed = append(failed, id)
		}
	}
	return failed
}

// Plan loads the manifest from storageDir and reconciles the corpus against
// it. An unreadable manifest falls back to processing everything and
// deleting nothing.
func Plan(storageDir string, current Corpus, scopeRoot string) Result {
	m, err := LoadManifest(storageDir)
	if err != nil {
		slog.Warn("reconcile.manifest_unreadable", "dir", storageDir, "err", err)
		return Result{Process: current}
	}
	res := Reconcile(m, current, scopeRoot)
	slog.Info("reconcile.plan",
		"docs", len(res.Process.Docs), "code", len(res.Process.Code),
		"unchanged", len(res.Unchanged), "stale", len(res.Stale), "out_of_scope", len(res.OutOfScope))
	return res
}
