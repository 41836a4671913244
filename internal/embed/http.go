package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openAI struct {
	client openai.Client
	model  string
	dim    int
	retry  RetryConfig
}

func newOpenAI(cfg Config) *openAI {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	opts := []option.RequestOption{
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &openAI{
		client: openai.NewClient(opts...),
		model:  model,
		dim:    cfg.Dimension,
		retry:  DefaultRetryConfig(),
	}
}

func (o *openAI) Dimension() int { return o.dim }

func (o *openAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	return retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(o.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			err = fmt.Errorf("openai embeddings: %w", err)
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
				apiErr.StatusCode != http.StatusTooManyRequests {
				return nil, permanent(err)
			}
			return nil, err
		}
		vecs := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(vecs) {
				return nil, permanent(fmt.Errorf("openai embeddings: index %d out of range", d.Index))
			}
			v := make([]float32, len(d.Embedding))
			for i, x := range d.Embedding {
				v[i] = float32(x)
			}
			vecs[d.Index] = v
		}
		if err := checkShape(vecs, len(texts), o.dim); err != nil {
			return nil, permanent(err)
		}
		return vecs, nil
	})
}

type ollama struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	retry   RetryConfig
}

func newOllama(cfg Config) *ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "bge-m3"
	}
	return &ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     cfg.Dimension,
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   DefaultRetryConfig(),
	}
}

func (o *ollama) Dimension() int { return o.dim }

func (o *ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	return retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
		var result struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		err := postJSON(ctx, o.client, o.baseURL+"/api/embed",
			map[string]any{"model": o.model, "input": texts}, &result)
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		if err := checkShape(result.Embeddings, len(texts), o.dim); err != nil {
			return nil, permanent(err)
		}
		return result.Embeddings, nil
	})
}

// postJSON sends payload to an Ollama endpoint and decodes the JSON answer
// into out. Client errors other than 429 are permanent.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
