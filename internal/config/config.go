// Package config loads settings from .graphrag.yaml, .env and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the optional yaml config file looked up in the config dir.
const FileName = ".graphrag.yaml"

// ErrMissingKey is returned when a selected provider lacks its credentials.
var ErrMissingKey = errors.New("missing required setting")

// Config holds every user-overridable setting. Unset pointer fields fall
// back to defaults through the Effective* accessors.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Processing ProcessingConfig `yaml:"processing"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Files      FilesConfig      `yaml:"files"`
	Merge      MergeConfig      `yaml:"merge"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`

	// Secrets only come from .env or the environment.
	Secrets Secrets `yaml:"-"`
}

// LLMConfig selects the completion provider used for code summaries and
// document entity extraction.
type LLMConfig struct {
	Provider  *string `yaml:"provider"`
	Model     *string `yaml:"model"`
	MaxTokens *int    `yaml:"max_tokens"`
}

// EmbeddingConfig selects the embedder used for merging.
type EmbeddingConfig struct {
	Provider  *string `yaml:"provider"`
	Model     *string `yaml:"model"`
	Dimension *int    `yaml:"dimension"`
	CacheSize *int    `yaml:"cache_size"`
}

// ProcessingConfig tunes chunking, extraction and batching.
type ProcessingConfig struct {
	Parallel         *int     `yaml:"parallel"`
	ChunkMaxTokens   *int     `yaml:"chunk_max_tokens"`
	MaxDepth         *int     `yaml:"max_depth"`
	Tokenizer        *string  `yaml:"tokenizer"`
	BatchPause       *float64 `yaml:"batch_pause_seconds"`
	DocWindowTokens  *int     `yaml:"doc_window_tokens"`
	DocOverlapTokens *int     `yaml:"doc_overlap_tokens"`
}

// RateLimitConfig paces LLM calls.
type RateLimitConfig struct {
	MinInterval *float64 `yaml:"min_interval_seconds"`
	ErrorWait   *float64 `yaml:"error_wait_seconds"`
}

// FilesConfig controls discovery.
type FilesConfig struct {
	DocExtensions  []string `yaml:"doc_extensions"`
	SpecialFiles   []string `yaml:"special_files"`
	NoProcess      []string `yaml:"no_process"`
	DocDefinitions []string `yaml:"doc_definitions"`
}

// MergeConfig controls entity merging.
type MergeConfig struct {
	Enabled        *bool    `yaml:"enabled"`
	Threshold      *float64 `yaml:"score_threshold"`
	MagicMethods   []string `yaml:"exclude_magic_methods"`
	GenericTerms   []string `yaml:"exclude_generic_terms"`
	TestRelated    []string `yaml:"exclude_test_related"`
	ExcludePrivate *bool    `yaml:"exclude_private"`
	CustomPatterns []string `yaml:"exclude_custom_patterns"`
	MinNameLength  *int     `yaml:"min_name_length"`
	MaxNameLength  *int     `yaml:"max_name_length"`
	Pause          *float64 `yaml:"pause_seconds"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

// StorageConfig locates storage directories.
type StorageConfig struct {
	BaseDir *string `yaml:"base_dir"`
}

// Secrets are provider credentials and endpoints.
type Secrets struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaHost      string
}

// Load reads dir/.graphrag.yaml (if present), loads dir/.env into the
// process environment without overriding existing variables, and applies
// environment overrides. A malformed yaml file is ignored with a warning;
// a malformed environment value is an error.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Warn("config.invalid_yaml", "path", filepath.Join(dir, FileName), "err", err)
			cfg = &Config{}
		}
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("config.invalid_env_file", "path", envPath, "err", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("GRAPH_CREATE_PROVIDER", &c.LLM.Provider)
	e.str("GRAPH_CREATE_MODEL_NAME", &c.LLM.Model)
	e.int("GRAPH_CREATE_MAX_TOKEN_SIZE", &c.LLM.MaxTokens)

	e.str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.str("EMBEDDING_MODEL_NAME", &c.Embedding.Model)
	e.int("EMBEDDING_DIM", &c.Embedding.Dimension)

	e.int("PARALLEL_NUM", &c.Processing.Parallel)
	e.int("CHUNK_MAX_TOKENS", &c.Processing.ChunkMaxTokens)
	e.int("MAX_DEPTH", &c.Processing.MaxDepth)
	e.str("TOKENIZER", &c.Processing.Tokenizer)

	e.float("RATE_LIMIT_MIN_INTERVAL", &c.RateLimit.MinInterval)
	e.float("RATE_LIMIT_ERROR_WAIT_TIME", &c.RateLimit.ErrorWait)

	e.list("DOC_EXT_TEXT_FILES", &c.Files.DocExtensions)
	e.list("DOC_EXT_SPECIAL_FILES", &c.Files.SpecialFiles)
	e.list("NO_PROCESS_LIST", &c.Files.NoProcess)
	e.list("DOC_DEFINITION_LIST", &c.Files.DocDefinitions)

	e.bool("MERGE_ENABLED", &c.Merge.Enabled)
	e.float("MERGE_SCORE_THRESHOLD", &c.Merge.Threshold)
	e.list("MERGE_EXCLUDE_MAGIC_METHODS", &c.Merge.MagicMethods)
	e.list("MERGE_EXCLUDE_GENERIC_TERMS", &c.Merge.GenericTerms)
	e.list("MERGE_EXCLUDE_TEST_RELATED", &c.Merge.TestRelated)
	e.bool("MERGE_EXCLUDE_PRIVATE_ENTITIES_ENABLED", &c.Merge.ExcludePrivate)
	e.list("MERGE_EXCLUDE_CUSTOM_PATTERNS", &c.Merge.CustomPatterns)
	e.int("MERGE_MIN_NAME_LENGTH", &c.Merge.MinNameLength)
	e.int("MERGE_MAX_NAME_LENGTH", &c.Merge.MaxNameLength)

	e.str("LOG_LEVEL", &c.Logging.Level)
	e.str("LOG_FORMAT", &c.Logging.Format)
	e.str("GRAPHRAG_STORAGE_DIR", &c.Storage.BaseDir)

	e.plain("ANTHROPIC_API_KEY", &c.Secrets.AnthropicAPIKey)
	e.plain("OPENAI_API_KEY", &c.Secrets.OpenAIAPIKey)
	e.plain("OPENAI_BASE_URL", &c.Secrets.OpenAIBaseURL)
	e.plain("OLLAMA_HOST", &c.Secrets.OllamaHost)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) plain(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) str(key string, dst **string) {
	if v, ok := e.get(key); ok {
		*dst = &v
	}
}

func (e *envReader) int(key string, dst **int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = &n
}

func (e *envReader) float(key string, dst **float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = &f
}

func (e *envReader) bool(key string, dst **bool) {
	if v, ok := e.get(key); ok {
		b := ParseBool(v)
		*dst = &b
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = SplitList(v)
	}
}

// ParseBool treats true, 1, yes and on (any case) as true.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// SplitList splits a comma-separated list, dropping blank items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidateLLM checks that the selected completion provider is usable.
func (c *Config) ValidateLLM() error {
	switch p := c.EffectiveLLMProvider(); p {
	case "":
		return fmt.Errorf("%w: GRAPH_CREATE_PROVIDER is not set", ErrMissingKey)
	case "anthropic":
		if c.Secrets.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: provider %q is selected but ANTHROPIC_API_KEY is not set", ErrMissingKey, p)
		}
	case "openai":
		if c.Secrets.OpenAIAPIKey == "" && c.Secrets.OpenAIBaseURL == "" {
			return fmt.Errorf("%w: provider %q is selected but neither OPENAI_API_KEY nor OPENAI_BASE_URL is set", ErrMissingKey, p)
		}
	case "ollama", "mock":
	default:
		return fmt.Errorf("unsupported GRAPH_CREATE_PROVIDER: %s", p)
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
