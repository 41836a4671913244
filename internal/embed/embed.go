// Package embed turns entity names into vectors for similarity matching.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyInput is returned when Embed is called without texts.
var ErrEmptyInput = errors.New("no texts to embed")

// Embedder produces one fixed-dimension vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures an Embedder.
type Config struct {
	// Provider is one of "openai", "ollama", "hash".
	Provider  string
	Model     string
	Dimension int
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	CacheSize int // zero disables the cache
}

// New creates the embedder named by cfg.Provider, wrapped in a cache when
// cfg.CacheSize is positive.
func New(cfg Config) (Embedder, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "openai", "openai-compatible":
		e = newOpenAI(cfg)
	case "ollama", "local":
		e = newOllama(cfg)
	case "hash", "mock", "":
		e = NewHash(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama, hash)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize), nil
	}
	return e, nil
}

// checkShape verifies a provider answered with one vector of the expected
// dimension per text.
func checkShape(vecs [][]float32, n, dim int) error {
	if len(vecs) != n {
		return fmt.Errorf("got %d embeddings for %d texts", len(vecs), n)
	}
	for i, v := range vecs {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}
