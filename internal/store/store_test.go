package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DeusData/repo-graphrag/internal/graph"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMemory(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	s.Close()
}

func TestOpenCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if s.Path() != filepath.Join(dir, DBFile) {
		t.Errorf("Path = %q", s.Path())
	}
}

func TestEntityUpsertAndGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	e := graph.Entity{Name: "a.py:def", Type: "function_definition", Description: "first", SourceID: "a.py:1-2", Paths: []string{"a.py"}}
	if err := s.UpsertEntity(ctx, e, "doc-1"); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	e.Description = "second"
	if err := s.UpsertEntity(ctx, e, "doc-2"); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	got, err := s.GetNode(ctx, "a.py:def")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got == nil {
		t.Fatal("expected entity, got nil")
	}
	if got.Description != "second" {
		t.Errorf("description = %q, want second", got.Description)
	}
	if len(got.Paths) != 1 || got.Paths[0] != "a.py" {
		t.Errorf("paths = %v", got.Paths)
	}

	docs, err := s.EntityDocs(ctx, "a.py:def")
	if err != nil {
		t.Fatalf("EntityDocs: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 provenance docs, got %v", docs)
	}

	missing, err := s.GetNode(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetNode(nope) = %v, %v", missing, err)
	}
	count, _ := s.CountEntities(ctx)
	if count != 1 {
		t.Errorf("CountEntities = %d, want 1", count)
	}
}

func TestUpsertKeepsMergedDescription(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	merged := graph.Entity{Name: "Parser", Description: "merged", Paths: []string{"a.md", "p.py"}}
	if err := s.UpsertEntity(ctx, merged, "doc-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntity(ctx, graph.Entity{Name: "Parser", Description: "fresh", Paths: []string{"a.md"}}, "doc-b"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetNode(ctx, "Parser")
	if got.Description != "merged" || len(got.Paths) != 2 {
		t.Errorf("merged entity overwritten: %+v", got)
	}
}

func TestInsertCustomGraphDropsDangling(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	g := graph.CustomGraph{
		Chunks: []graph.Chunk{{Content: "def f(): pass", SourceID: "a.py:1-1", FilePath: "a.py"}},
		Entities: []graph.Entity{
			{Name: "a.py:Outer", Paths: []string{"a.py"}},
			{Name: "a.py:f", Paths: []string{"a.py"}},
		},
		Relationships: []graph.Relationship{
			{SrcID: "a.py:Outer", TgtID: "a.py:f", Weight: 1},
			{SrcID: "a.py:Ghost", TgtID: "a.py:f", Weight: 1},
		},
	}
	st, err := s.InsertCustomGraph(ctx, "doc-1", g)
	if err != nil {
		t.Fatalf("InsertCustomGraph: %v", err)
	}
	if st.Chunks != 1 || st.Entities != 2 || st.Relationships != 1 || st.Dropped != 1 {
		t.Errorf("stats = %+v", st)
	}

	rels, err := s.FindRelationships(ctx, "a.py:f")
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 || rels[0].SrcID != "a.py:Outer" {
		t.Errorf("relationships = %+v", rels)
	}

	manifest, err := s.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := manifest[graph.ChunkKey("a.py", "def f(): pass")]
	if !ok {
		t.Fatalf("chunk missing from manifest: %v", manifest)
	}
	if entry.FilePath != "a.py" || entry.FullDocID != "doc-1" {
		t.Errorf("manifest entry = %+v", entry)
	}
}

func TestMergeEntities(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	g := graph.CustomGraph{
		Entities: []graph.Entity{
			{Name: "Parser", Description: "doc side", Paths: []string{"a.md"}},
			{Name: "x.py:Parser", Description: "code x", Paths: []string{"x.py"}},
			{Name: "y.py:Parser", Description: "code y", Paths: []string{"y.py"}},
			{Name: "x.py:main", Paths: []string{"x.py"}},
		},
		Relationships: []graph.Relationship{
			{SrcID: "x.py:main", TgtID: "x.py:Parser", Weight: 1},
			{SrcID: "x.py:Parser", TgtID: "Parser", Weight: 1},
		},
	}
	if _, err := s.InsertCustomGraph(ctx, "doc-1", g); err != nil {
		t.Fatal(err)
	}

	data := graph.TargetData{Description: "\ndoc side<SEP>x.py:code x<SEP>y.py:code y", Paths: []string{"a.md", "x.py", "y.py"}}
	if err := s.MergeEntities(ctx, []string{"Parser", "x.py:Parser", "y.py:Parser"}, "Parser", data); err != nil {
		t.Fatalf("MergeEntities: %v", err)
	}

	names, _ := s.ListAllEntityNames(ctx)
	if len(names) != 2 {
		t.Fatalf("names = %v, want [Parser x.py:main]", names)
	}
	got, _ := s.GetNode(ctx, "Parser")
	if got.FilePath() != "a.md<SEP>x.py<SEP>y.py" {
		t.Errorf("file_path = %q", got.FilePath())
	}
	if got.Description != data.Description {
		t.Errorf("description = %q", got.Description)
	}

	rels, _ := s.FindRelationships(ctx, "Parser")
	if len(rels) != 1 || rels[0].SrcID != "x.py:main" || rels[0].TgtID != "Parser" {
		t.Errorf("relationships = %+v (self loop should be dropped)", rels)
	}
}

func TestMergeCreatesMissingTarget(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.UpsertEntity(ctx, graph.Entity{Name: "a.py:X", Paths: []string{"a.py"}}, "doc-1"); err != nil {
		t.Fatal(err)
	}
	data := graph.TargetData{Description: "d", Paths: []string{"a.py"}}
	if err := s.MergeEntities(ctx, []string{"a.py:X"}, "X", data); err != nil {
		t.Fatalf("MergeEntities: %v", err)
	}
	if ok, _ := s.HasNode(ctx, "X"); !ok {
		t.Error("target not created")
	}
	if ok, _ := s.HasNode(ctx, "a.py:X"); ok {
		t.Error("source not removed")
	}
	docs, _ := s.EntityDocs(ctx, "X")
	if len(docs) != 1 || docs[0] != "doc-1" {
		t.Errorf("provenance not moved: %v", docs)
	}
}

func TestDeleteByDocID(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	mk := func(docID, path string, names ...string) {
		t.Helper()
		var g graph.CustomGraph
		g.Chunks = []graph.Chunk{{Content: "content of " + path, SourceID: path + ":1-1", FilePath: path}}
		for _, n := range names {
			g.Entities = append(g.Entities, graph.Entity{Name: n, Paths: []string{path}})
		}
		if err := s.UpsertFullDoc(ctx, docID, "content of "+path, path); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertStatus(ctx, docID, graph.DocStatus{Status: graph.StatusProcessed, FilePath: path, CreatedAt: Now(), UpdatedAt: Now()}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.InsertCustomGraph(ctx, docID, g); err != nil {
			t.Fatal(err)
		}
	}
	mk("doc-a", "a.py", "a.py:f", "Shared")
	mk("doc-b", "b.py", "b.py:g", "Shared")

	if err := s.DeleteByDocID(ctx, "doc-a"); err != nil {
		t.Fatalf("DeleteByDocID: %v", err)
	}

	if ok, _ := s.HasNode(ctx, "a.py:f"); ok {
		t.Error("a.py:f should be gone")
	}
	shared, _ := s.GetNode(ctx, "Shared")
	if shared == nil {
		t.Fatal("Shared should survive with doc-b provenance")
	}
	st, _ := s.GetStatus(ctx, "doc-a")
	if st != nil {
		t.Errorf("status still present: %+v", st)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Docs != 1 || stats.Chunks != 1 || stats.Entities != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeleteStripsPathFromMergedEntity(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.UpsertFullDoc(ctx, "doc-a", "x", "a.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntity(ctx, graph.Entity{Name: "Parser", Paths: []string{"a.md", "x.py"}}, "doc-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntity(ctx, graph.Entity{Name: "Parser", Paths: []string{"x.py"}}, "doc-x"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteByDocID(ctx, "doc-a"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetNode(ctx, "Parser")
	if got == nil || got.FilePath() != "x.py" {
		t.Errorf("Parser = %+v, want file_path x.py", got)
	}
}

func TestDeleteRestoresPathFromRemainingDoc(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, d := range []struct{ id, path string }{
		{"doc-1", "/repo/pkg1/util.py"},
		{"doc-2", "/repo/pkg2/util.py"},
	} {
		if err := s.UpsertStatus(ctx, d.id, graph.DocStatus{Status: graph.StatusProcessed, FilePath: d.path, CreatedAt: Now(), UpdatedAt: Now()}); err != nil {
			t.Fatal(err)
		}
		e := graph.Entity{Name: "util.py:load", Paths: []string{d.path}}
		if _, err := s.InsertCustomGraph(ctx, d.id, graph.CustomGraph{Entities: []graph.Entity{e}}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteByDocID(ctx, "doc-2"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetNode(ctx, "util.py:load")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.FilePath() != "/repo/pkg1/util.py" {
		t.Errorf("util.py:load = %+v, want file_path /repo/pkg1/util.py", got)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	in := graph.DocStatus{
		Status:         graph.StatusProcessed,
		ChunksCount:    2,
		Content:        "package main",
		ContentSummary: "Code file: main.go",
		ContentLength:  12,
		CreatedAt:      Now(),
		UpdatedAt:      Now(),
		FilePath:       "main.go",
		ChunksList:     []string{"chunk-1", "chunk-2"},
		Metadata:       map[string]string{"file_type": "code"},
	}
	if err := s.UpsertStatus(ctx, "doc-1", in); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}
	got, err := s.GetStatus(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.ContentSummary != in.ContentSummary || len(got.ChunksList) != 2 || got.Metadata["file_type"] != "code" {
		t.Errorf("status = %+v", got)
	}
}

func TestRouter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(dir)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.CloseAll()

	if r.HasStorage("alpha") {
		t.Error("alpha should not exist yet")
	}
	if _, err := r.ForStorage("alpha"); err != nil {
		t.Fatalf("ForStorage: %v", err)
	}
	if _, err := r.ForStorage("beta"); err != nil {
		t.Fatalf("ForStorage: %v", err)
	}
	if _, err := r.ForStorage("../escape"); err == nil {
		t.Error("expected error for path-like name")
	}

	list, err := r.ListStorages()
	if err != nil {
		t.Fatalf("ListStorages: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "beta" {
		t.Errorf("storages = %+v", list)
	}

	if err := r.DeleteStorage("alpha"); err != nil {
		t.Fatalf("DeleteStorage: %v", err)
	}
	if r.HasStorage("alpha") {
		t.Error("alpha should be deleted")
	}
}
