package embed

import (
	"context"
	"strings"

	"github.com/zeebo/xxh3"
)

const defaultHashDimension = 256

// Hash is an offline embedder: character trigrams of the lowercased text are
// hashed into buckets. Equal texts (ignoring case) embed identically and
// texts sharing most trigrams score high.
type Hash struct {
	dim int
}

// NewHash creates a Hash embedder with dim buckets.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &Hash{dim: dim}
}

func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dim)
	s := []rune(" " + strings.ToLower(strings.TrimSpace(text)) + " ")
	for i := 0; i+3 <= len(s); i++ {
		b := xxh3.HashString(string(s[i : i+3]))
		v[b%uint64(h.dim)]++
	}
	return v
}
