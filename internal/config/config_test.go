package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyEnv(noEnv); err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveParallel() != 3 {
		t.Errorf("parallel = %d, want 3", cfg.EffectiveParallel())
	}
	if cfg.EffectiveChunkMaxTokens() != 2048 {
		t.Errorf("chunk = %d, want 2048", cfg.EffectiveChunkMaxTokens())
	}
	if cfg.EffectiveMaxDepth() != 30 {
		t.Errorf("depth = %d, want 30", cfg.EffectiveMaxDepth())
	}
	if cfg.EffectiveMinInterval() != time.Second {
		t.Errorf("interval = %v", cfg.EffectiveMinInterval())
	}
	if cfg.EffectiveErrorWait() != 3*time.Second {
		t.Errorf("error wait = %v", cfg.EffectiveErrorWait())
	}
	if !cfg.EffectiveMergeEnabled() || cfg.EffectiveMergeThreshold() != 0.95 {
		t.Error("merge defaults wrong")
	}
	if cfg.EffectiveMergeMinNameLength() != 2 || cfg.EffectiveMergeMaxNameLength() != 50 {
		t.Error("name length defaults wrong")
	}
	if cfg.EffectiveMergePause() != 500*time.Millisecond {
		t.Errorf("merge pause = %v", cfg.EffectiveMergePause())
	}
	if cfg.EffectiveEmbeddingModel() != "BAAI/bge-m3" || cfg.EffectiveEmbeddingDim() != 1024 {
		t.Error("embedding defaults wrong")
	}
	if cfg.EffectiveBatchPause() != 2*time.Second {
		t.Errorf("batch pause = %v", cfg.EffectiveBatchPause())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
processing:
  parallel: 5
  chunk_max_tokens: 512
merge:
  enabled: false
  score_threshold: 0.8
  exclude_custom_patterns: ["gen_*"]
files:
  doc_extensions: [md, adoc]
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveParallel() != 5 || cfg.EffectiveChunkMaxTokens() != 512 {
		t.Errorf("processing = %+v", cfg.Processing)
	}
	if cfg.EffectiveMergeEnabled() {
		t.Error("expected merge disabled")
	}
	if cfg.EffectiveMergeThreshold() != 0.8 {
		t.Errorf("threshold = %f", cfg.EffectiveMergeThreshold())
	}
	if len(cfg.Merge.CustomPatterns) != 1 || cfg.Merge.CustomPatterns[0] != "gen_*" {
		t.Errorf("patterns = %v", cfg.Merge.CustomPatterns)
	}
	if len(cfg.Files.DocExtensions) != 2 {
		t.Errorf("doc extensions = %v", cfg.Files.DocExtensions)
	}
}

func TestLoadInvalidYAMLFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("not: [valid: yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveParallel() != 3 {
		t.Errorf("expected default on invalid yaml, got %d", cfg.EffectiveParallel())
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PARALLEL_NUM", "")
	os.Unsetenv("PARALLEL_NUM")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PARALLEL_NUM=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveParallel() != 7 {
		t.Errorf("parallel = %d, want 7", cfg.EffectiveParallel())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	cfg := &Config{}
	five := 5
	cfg.Processing.Parallel = &five
	env := mapEnv(map[string]string{
		"PARALLEL_NUM":                "9",
		"MERGE_ENABLED":               "off",
		"MERGE_EXCLUDE_GENERIC_TERMS": " data, , item ",
		"RATE_LIMIT_MIN_INTERVAL":     "0.25",
		"GRAPH_CREATE_PROVIDER":       "Anthropic",
		"ANTHROPIC_API_KEY":           "sk-test",
	})
	if err := cfg.ApplyEnv(env); err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveParallel() != 9 {
		t.Errorf("parallel = %d", cfg.EffectiveParallel())
	}
	if cfg.EffectiveMergeEnabled() {
		t.Error("expected merge disabled")
	}
	if got := cfg.Merge.GenericTerms; len(got) != 2 || got[0] != "data" || got[1] != "item" {
		t.Errorf("generic terms = %v", got)
	}
	if cfg.EffectiveMinInterval() != 250*time.Millisecond {
		t.Errorf("interval = %v", cfg.EffectiveMinInterval())
	}
	if cfg.EffectiveLLMProvider() != "anthropic" || cfg.LLMAPIKey() != "sk-test" {
		t.Errorf("llm = %s / %s", cfg.EffectiveLLMProvider(), cfg.LLMAPIKey())
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := &Config{}
	err := cfg.ApplyEnv(mapEnv(map[string]string{"PARALLEL_NUM": "three", "MERGE_SCORE_THRESHOLD": "high"}))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "on": true,
		"false": false, "0": false, "no": false, "": false, "enabled": false,
	} {
		if got := ParseBool(in); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"unset", nil, true},
		{"anthropic without key", map[string]string{"GRAPH_CREATE_PROVIDER": "anthropic"}, true},
		{"anthropic with key", map[string]string{"GRAPH_CREATE_PROVIDER": "anthropic", "ANTHROPIC_API_KEY": "k"}, false},
		{"openai base url only", map[string]string{"GRAPH_CREATE_PROVIDER": "openai", "OPENAI_BASE_URL": "http://localhost:8000/v1"}, false},
		{"openai nothing", map[string]string{"GRAPH_CREATE_PROVIDER": "openai"}, true},
		{"ollama", map[string]string{"GRAPH_CREATE_PROVIDER": "ollama"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			if err := cfg.ApplyEnv(mapEnv(tt.env)); err != nil {
				t.Fatal(err)
			}
			err := cfg.ValidateLLM()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.name != "unset" && !errors.Is(err, ErrMissingKey) {
				t.Errorf("expected ErrMissingKey, got %v", err)
			}
		})
	}
}
