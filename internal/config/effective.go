package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil && *p > 0 {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil && *p >= 0 {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// EffectiveLLMProvider returns the completion provider name, lowercased.
func (c *Config) EffectiveLLMProvider() string {
	return strings.ToLower(strOr(c.LLM.Provider, ""))
}

// EffectiveLLMModel returns the completion model, or "" for the provider default.
func (c *Config) EffectiveLLMModel() string { return strOr(c.LLM.Model, "") }

// EffectiveLLMMaxTokens returns the completion token limit (default 4096).
func (c *Config) EffectiveLLMMaxTokens() int { return intOr(c.LLM.MaxTokens, 4096) }

// EffectiveEmbeddingProvider returns the embedder name (default "hash").
func (c *Config) EffectiveEmbeddingProvider() string {
	return strings.ToLower(strOr(c.Embedding.Provider, "hash"))
}

// EffectiveEmbeddingModel returns the embedding model (default BAAI/bge-m3).
func (c *Config) EffectiveEmbeddingModel() string { return strOr(c.Embedding.Model, "BAAI/bge-m3") }

// EffectiveEmbeddingDim returns the embedding dimension (default 1024).
func (c *Config) EffectiveEmbeddingDim() int { return intOr(c.Embedding.Dimension, 1024) }

// EffectiveEmbeddingCacheSize returns the embedding LRU size (default 10000).
func (c *Config) EffectiveEmbeddingCacheSize() int { return intOr(c.Embedding.CacheSize, 10000) }

// EffectiveParallel returns the batch size (default 3).
func (c *Config) EffectiveParallel() int { return intOr(c.Processing.Parallel, 3) }

// EffectiveChunkMaxTokens returns the code chunk budget (default 2048).
func (c *Config) EffectiveChunkMaxTokens() int { return intOr(c.Processing.ChunkMaxTokens, 2048) }

// EffectiveMaxDepth returns the extraction depth bound (default 30).
func (c *Config) EffectiveMaxDepth() int { return intOr(c.Processing.MaxDepth, 30) }

// EffectiveTokenizer returns the tokenizer spec (default "tiktoken:cl100k_base").
func (c *Config) EffectiveTokenizer() string {
	return strOr(c.Processing.Tokenizer, "tiktoken:cl100k_base")
}

// EffectiveBatchPause returns the pause between batches (default 2s).
func (c *Config) EffectiveBatchPause() time.Duration {
	return seconds(floatOr(c.Processing.BatchPause, 2.0))
}

// EffectiveDocWindowTokens returns the document window size (default 1200).
func (c *Config) EffectiveDocWindowTokens() int { return intOr(c.Processing.DocWindowTokens, 1200) }

// EffectiveDocOverlapTokens returns the document window overlap (default 100).
func (c *Config) EffectiveDocOverlapTokens() int { return intOr(c.Processing.DocOverlapTokens, 100) }

// EffectiveMinInterval returns the minimum spacing of LLM calls (default 1s).
func (c *Config) EffectiveMinInterval() time.Duration {
	return seconds(floatOr(c.RateLimit.MinInterval, 1.0))
}

// EffectiveErrorWait returns the wait after a rate-limit error (default 3s).
func (c *Config) EffectiveErrorWait() time.Duration {
	return seconds(floatOr(c.RateLimit.ErrorWait, 3.0))
}

// EffectiveMergeEnabled reports whether runs end with a merge pass (default true).
func (c *Config) EffectiveMergeEnabled() bool { return boolOr(c.Merge.Enabled, true) }

// EffectiveMergeThreshold returns the merge similarity threshold (default 0.95).
func (c *Config) EffectiveMergeThreshold() float64 { return floatOr(c.Merge.Threshold, 0.95) }

// EffectiveMergeExcludePrivate reports whether _private names are excluded (default true).
func (c *Config) EffectiveMergeExcludePrivate() bool { return boolOr(c.Merge.ExcludePrivate, true) }

// EffectiveMergeMinNameLength returns the minimum mergeable name length (default 2).
func (c *Config) EffectiveMergeMinNameLength() int { return intOr(c.Merge.MinNameLength, 2) }

// EffectiveMergeMaxNameLength returns the maximum mergeable name length (default 50).
func (c *Config) EffectiveMergeMaxNameLength() int { return intOr(c.Merge.MaxNameLength, 50) }

// EffectiveMergePause returns the pause after each merge (default 0.5s).
func (c *Config) EffectiveMergePause() time.Duration {
	return seconds(floatOr(c.Merge.Pause, 0.5))
}

// EffectiveLogLevel returns the log level (default "info").
func (c *Config) EffectiveLogLevel() string { return strings.ToLower(strOr(c.Logging.Level, "info")) }

// EffectiveLogFormat returns the log format (default "text").
func (c *Config) EffectiveLogFormat() string { return strings.ToLower(strOr(c.Logging.Format, "text")) }

// EffectiveBaseDir returns the directory holding named storages
// (default ~/.cache/repo-graphrag).
func (c *Config) EffectiveBaseDir() string {
	if c.Storage.BaseDir != nil && *c.Storage.BaseDir != "" {
		return *c.Storage.BaseDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "repo-graphrag")
	}
	return filepath.Join(os.TempDir(), "repo-graphrag")
}

// LLMBaseURL returns the endpoint for the selected completion provider.
func (c *Config) LLMBaseURL() string {
	switch c.EffectiveLLMProvider() {
	case "openai":
		return c.Secrets.OpenAIBaseURL
	case "ollama":
		return c.Secrets.OllamaHost
	}
	return ""
}

// LLMAPIKey returns the key for the selected completion provider.
func (c *Config) LLMAPIKey() string {
	switch c.EffectiveLLMProvider() {
	case "anthropic":
		return c.Secrets.AnthropicAPIKey
	case "openai":
		return c.Secrets.OpenAIAPIKey
	}
	return ""
}

// EmbeddingBaseURL returns the endpoint for the selected embedder.
func (c *Config) EmbeddingBaseURL() string {
	switch c.EffectiveEmbeddingProvider() {
	case "openai":
		return c.Secrets.OpenAIBaseURL
	case "ollama":
		return c.Secrets.OllamaHost
	}
	return ""
}
