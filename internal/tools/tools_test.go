package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/repo-graphrag/internal/embed"
	"github.com/DeusData/repo-graphrag/internal/llm"
	"github.com/DeusData/repo-graphrag/internal/merge"
	"github.com/DeusData/repo-graphrag/internal/pipeline"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/tokenizer"
	"github.com/DeusData/repo-graphrag/internal/watcher"
)

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, code string) (string, error) {
	first, _, _ := strings.Cut(code, "\n")
	return "summary of " + first, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string) (llm.Extraction, error) {
	return llm.Extraction{Entities: []llm.ExtractedEntity{{Name: "Greeter", Type: "class_name", Description: "greets"}}}, nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	r, err := store.NewRouter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.CloseAll)

	collab := &pipeline.Collaborators{
		Summarizer:   stubSummarizer{},
		DocExtractor: stubExtractor{},
		Embedder:     embed.NewHash(64),
		Tokenizer:    tokenizer.Heuristic{},
	}
	opts := pipeline.Options{Parallel: 2, MergeEnabled: true, MergeRules: merge.DefaultRules()}
	srv := NewServer(r, collab, opts, "test")

	readDir := t.TempDir()
	files := map[string]string{
		"app.py":    "class Greeter:\n    def greet(self):\n        return 1\n",
		"README.md": "The Greeter says hello.\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(readDir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return srv, readDir
}

func call(t *testing.T, handler mcp.ToolHandler, args map[string]any) (string, bool) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	res, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: raw},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text := res.Content[0].(*mcp.TextContent).Text
	return text, res.IsError
}

func TestGraphCreateThenStatus(t *testing.T) {
	srv, readDir := newTestServer(t)

	text, isErr := call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": readDir, "storage_name": "proj"})
	if isErr {
		t.Fatalf("graph_create failed: %s", text)
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(text), &created); err != nil {
		t.Fatal(err)
	}
	if created["action"] != "created" {
		t.Errorf("action = %v, want created", created["action"])
	}
	if created["code"].(float64) != 1 || created["docs"].(float64) != 1 {
		t.Errorf("unexpected counts: %s", text)
	}

	text, _ = call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": readDir, "storage_name": "proj"})
	if !strings.Contains(text, `"action": "updated"`) {
		t.Errorf("second create should report updated: %s", text)
	}

	text, isErr = call(t, srv.handleGraphStatus, map[string]any{"storage_name": "proj"})
	if isErr {
		t.Fatalf("graph_status failed: %s", text)
	}
	var st map[string]any
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatal(err)
	}
	if st["name"] != "proj" || st["docs"].(float64) != 2 {
		t.Errorf("unexpected status: %s", text)
	}

	text, _ = call(t, srv.handleGraphStatus, map[string]any{})
	if !strings.Contains(text, `"name": "proj"`) {
		t.Errorf("listing should include proj: %s", text)
	}
}

func TestGraphEntity(t *testing.T) {
	srv, readDir := newTestServer(t)
	if _, isErr := call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": readDir}); isErr {
		t.Fatal("graph_create failed")
	}

	text, isErr := call(t, srv.handleGraphEntity, map[string]any{"name": "app.py:greet"})
	if isErr {
		t.Fatalf("graph_entity failed: %s", text)
	}
	if !strings.Contains(text, "summary of def greet(self):") {
		t.Errorf("missing description: %s", text)
	}

	_, isErr = call(t, srv.handleGraphEntity, map[string]any{"name": "nope"})
	if !isErr {
		t.Error("unknown entity should be an error")
	}
}

func TestGraphCreateValidation(t *testing.T) {
	srv, readDir := newTestServer(t)

	if _, isErr := call(t, srv.handleGraphCreate, map[string]any{}); !isErr {
		t.Error("missing read_dir_path should be an error")
	}
	if _, isErr := call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": readDir, "storage_name": "../x"}); !isErr {
		t.Error("invalid storage name should be an error")
	}
	text, isErr := call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": filepath.Join(readDir, "missing")})
	if !isErr || !strings.Contains(text, "An error occurred") {
		t.Errorf("missing read dir should be an error, got %s", text)
	}
}

func TestGraphMergeAndDeleteRequireStorage(t *testing.T) {
	srv, _ := newTestServer(t)
	text, isErr := call(t, srv.handleGraphMerge, map[string]any{"storage_name": "ghost"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Errorf("merge on missing storage: %s", text)
	}
	if _, isErr := call(t, srv.handleGraphDelete, map[string]any{"storage_name": "ghost"}); !isErr {
		t.Error("delete on missing storage should be an error")
	}
}

func TestGraphDelete(t *testing.T) {
	srv, readDir := newTestServer(t)
	w := watcher.New(nil, nil)
	srv.SetWatcher(w)

	if _, isErr := call(t, srv.handleGraphCreate, map[string]any{"read_dir_path": readDir, "storage_name": "gone"}); isErr {
		t.Fatal("graph_create failed")
	}
	if w.Watching() != 1 {
		t.Errorf("create should register the read dir with the watcher")
	}

	if text, isErr := call(t, srv.handleGraphDelete, map[string]any{"storage_name": "gone"}); isErr {
		t.Fatalf("graph_delete failed: %s", text)
	}
	if srv.router.HasStorage("gone") {
		t.Error("storage should be removed")
	}
	if w.Watching() != 0 {
		t.Error("delete should stop watching")
	}
}

func TestCreateWithoutLLM(t *testing.T) {
	srv, readDir := newTestServer(t)
	srv.collab.Summarizer = nil
	if _, err := srv.Create(context.Background(), "x", readDir); err == nil {
		t.Fatal("expected error without a summarizer")
	}
}
