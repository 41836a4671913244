package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Cached memoizes another Embedder in an LRU keyed by the text's hash.
type Cached struct {
	inner Embedder
	cache *lru.Cache[xxh3.Uint128, []float32]
}

// NewCached wraps e with an LRU of up to size vectors.
func NewCached(e Embedder, size int) *Cached {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[xxh3.Uint128, []float32](size)
	if err != nil {
		c, _ = lru.New[xxh3.Uint128, []float32](10000)
	}
	return &Cached{inner: e, cache: c}
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed serves known texts from the cache and embeds the rest in one call.
// Returned vectors are copies.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.cache.Get(xxh3.HashString128(t)); ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkShape(vecs, len(missTexts), 0); err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		c.cache.Add(xxh3.HashString128(missTexts[j]), append([]float32(nil), vecs[j]...))
		out[i] = vecs[j]
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }
