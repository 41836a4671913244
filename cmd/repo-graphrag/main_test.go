package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliEnv isolates a run: empty config dir, mock LLM, heuristic tokenizer,
// hash embeddings and a temp storage dir.
func cliEnv(t *testing.T) (configDir, storageDir string) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv("GRAPH_CREATE_PROVIDER", "mock")
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	t.Setenv("TOKENIZER", "heuristic")
	t.Setenv("RATE_LIMIT_MIN_INTERVAL", "0")
	t.Setenv("GRAPHRAG_STORAGE_DIR", "")
	return t.TempDir(), t.TempDir()
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_Version(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(out, "repo-graphrag ") {
		t.Errorf("version output = %q", out)
	}
}

func TestCLI_NoCommand(t *testing.T) {
	code, _, errOut := runCLI(t)
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut, "Usage: repo-graphrag") {
		t.Errorf("usage missing from stderr: %q", errOut)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	cfgDir, storageDir := cliEnv(t)
	code, _, errOut := runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "frobnicate")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut, "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCLI_CreateRequiresReadDir(t *testing.T) {
	cfgDir, storageDir := cliEnv(t)
	code, _, _ := runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "create")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestCLI_CreateThenStatus(t *testing.T) {
	cfgDir, storageDir := cliEnv(t)
	readDir := t.TempDir()
	src := "def greet(name):\n    return 'hello ' + name\n"
	if err := os.WriteFile(filepath.Join(readDir, "greet.py"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "create", readDir, "demo")
	if code != 0 {
		t.Fatalf("create exit code = %d\nstdout: %s\nstderr: %s", code, out, errOut)
	}
	if !strings.Contains(out, "Created storage demo") {
		t.Errorf("create output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(storageDir, "demo", "graph.db")); err != nil {
		t.Errorf("graph.db missing: %v", err)
	}

	code, out, _ = runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "create", readDir, "demo")
	if code != 0 {
		t.Fatalf("second create exit code = %d", code)
	}
	if !strings.Contains(out, "Updated storage demo") {
		t.Errorf("second create output = %q", out)
	}

	code, out, _ = runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "status")
	if code != 0 {
		t.Fatalf("status exit code = %d", code)
	}
	if !strings.Contains(out, "demo") || !strings.Contains(out, "Entities") {
		t.Errorf("status output = %q", out)
	}
}

func TestCLI_StatusMissingStorage(t *testing.T) {
	cfgDir, storageDir := cliEnv(t)
	code, _, errOut := runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "status", "nope")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, `storage "nope" not found`) {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCLI_MergeMissingStorage(t *testing.T) {
	cfgDir, storageDir := cliEnv(t)
	code, _, _ := runCLI(t, "--config", cfgDir, "--storage-dir", storageDir, "merge", "nope")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestStorageArgs(t *testing.T) {
	tests := []struct {
		args    []string
		needDir bool
		dir     string
		storage string
		wantErr bool
	}{
		{[]string{"./repo"}, true, "./repo", "storage", false},
		{[]string{"./repo", "mine"}, true, "./repo", "mine", false},
		{nil, true, "", "", true},
		{[]string{"a", "b", "c"}, true, "", "", true},
		{nil, false, "", "storage", false},
		{[]string{"x"}, false, "", "x", false},
		{[]string{"../up"}, false, "", "", true},
	}
	for _, tt := range tests {
		dir, storage, err := storageArgs(tt.args, tt.needDir)
		if (err != nil) != tt.wantErr {
			t.Errorf("storageArgs(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if err == nil && (dir != tt.dir || storage != tt.storage) {
			t.Errorf("storageArgs(%v) = %q, %q", tt.args, dir, storage)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
