package pipeline

import (
	"fmt"

	"github.com/DeusData/repo-graphrag/internal/config"
	"github.com/DeusData/repo-graphrag/internal/docingest"
	"github.com/DeusData/repo-graphrag/internal/embed"
	"github.com/DeusData/repo-graphrag/internal/extract"
	"github.com/DeusData/repo-graphrag/internal/llm"
	"github.com/DeusData/repo-graphrag/internal/merge"
	"github.com/DeusData/repo-graphrag/internal/ratelimit"
	"github.com/DeusData/repo-graphrag/internal/store"
	"github.com/DeusData/repo-graphrag/internal/tokenizer"
)

// Collaborators are the process-wide services shared by every storage.
// The rate limiter inside the LLM client is shared too, so concurrent runs
// on different storages are paced together.
type Collaborators struct {
	Summarizer   extract.Summarizer
	DocExtractor docingest.Extractor
	Embedder     merge.Embedder
	Tokenizer    tokenizer.Tokenizer
}

// NewCollaborators builds the LLM, embedding and tokenizer services from
// cfg. With withLLM false only the embedder and tokenizer are built, which
// is enough for merge-only runs.
func NewCollaborators(cfg *config.Config, withLLM bool) (*Collaborators, error) {
	c := &Collaborators{Tokenizer: tokenizer.New(cfg.EffectiveTokenizer())}

	emb, err := embed.New(embed.Config{
		Provider:  cfg.EffectiveEmbeddingProvider(),
		Model:     cfg.EffectiveEmbeddingModel(),
		Dimension: cfg.EffectiveEmbeddingDim(),
		APIKey:    cfg.Secrets.OpenAIAPIKey,
		BaseURL:   cfg.EmbeddingBaseURL(),
		CacheSize: cfg.EffectiveEmbeddingCacheSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	c.Embedder = emb

	if !withLLM {
		return c, nil
	}
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:    cfg.EffectiveLLMProvider(),
		Model:   cfg.EffectiveLLMModel(),
		APIKey:  cfg.LLMAPIKey(),
		BaseURL: cfg.LLMBaseURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	limiter := ratelimit.New(cfg.EffectiveParallel(), cfg.EffectiveMinInterval())
	client := llm.NewClient(provider, limiter, cfg.EffectiveLLMMaxTokens(), cfg.EffectiveErrorWait())
	c.Summarizer = llm.NewSummarizer(client)
	c.DocExtractor = llm.NewEntityExtractor(client, cfg.Files.DocDefinitions)
	return c, nil
}

// Deps binds the collaborators to one storage.
func (c *Collaborators) Deps(st *store.Store, storageDir string) Deps {
	return Deps{
		Store:        st,
		StorageDir:   storageDir,
		Summarizer:   c.Summarizer,
		DocExtractor: c.DocExtractor,
		Embedder:     c.Embedder,
		Tokenizer:    c.Tokenizer,
	}
}
