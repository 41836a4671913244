package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DeusData/repo-graphrag/internal/ratelimit"
)

const codeSummaryPrompt = `# Instructions
Extract the important elements and processes from the program and create a brief summary statement described in natural language.

# Rules
- Create a summary statement using natural language, not the program.
- Output only a pure summary without any supplements or questions.

# Program
{node_text}

# Summary statement`

// Client runs completions under a shared rate limiter. After a rate-limit
// response it waits errWait before returning the error to the caller.
type Client struct {
	provider  Provider
	limiter   *ratelimit.Limiter
	maxTokens int
	errWait   time.Duration
}

// NewClient wraps p. A nil limiter disables pacing.
func NewClient(p Provider, limiter *ratelimit.Limiter, maxTokens int, errWait time.Duration) *Client {
	return &Client{provider: p, limiter: limiter, maxTokens: maxTokens, errWait: errWait}
}

// Complete runs one request under the limiter.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	if c.limiter != nil {
		release, err := c.limiter.Acquire(ctx)
		if err != nil {
			return "", err
		}
		defer release()
	}

	out, err := c.provider.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			slog.Warn("llm.rate_limited", "provider", c.provider.Name(), "wait", c.errWait, "err", err)
			_ = ratelimit.Sleep(ctx, c.errWait)
		} else {
			slog.Error("llm.error", "provider", c.provider.Name(), "err", err)
		}
		return "", err
	}
	return out, nil
}

// Summarizer describes code in natural language.
type Summarizer struct {
	client *Client
}

// NewSummarizer creates a Summarizer on top of c.
func NewSummarizer(c *Client) *Summarizer {
	return &Summarizer{client: c}
}

// Summarize returns a short natural-language summary of code.
func (s *Summarizer) Summarize(ctx context.Context, code string) (string, error) {
	prompt := strings.Replace(codeSummaryPrompt, "{node_text}", code, 1)
	out, err := s.client.Complete(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
