// Package llm provides the completion providers used to summarize code and
// to extract entities from documents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRateLimited is wrapped by provider errors caused by a rate-limit response.
var ErrRateLimited = errors.New("rate limited")

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider produces completions.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	// Type is one of "anthropic", "openai", "ollama", "mock".
	Type    string
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewProvider creates the provider named by cfg.Type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	switch strings.ToLower(cfg.Type) {
	case "anthropic", "claude":
		return newAnthropicProvider(cfg)
	case "openai", "openai-compatible":
		return newOpenAIProvider(cfg), nil
	case "ollama", "local":
		return newOllamaProvider(cfg), nil
	case "mock", "test":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s (supported: anthropic, openai, ollama, mock)", cfg.Type)
	}
}

func rateLimitedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRateLimited, fmt.Sprintf(format, args...))
}

// MockProvider returns canned completions. CompleteFunc, when set, decides
// the answer.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, req Request) (string, error)
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return fmt.Sprintf("[mock] summary of %.40s", req.Prompt), nil
}
