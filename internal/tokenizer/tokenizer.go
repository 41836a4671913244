// Package tokenizer counts tokens for chunk budgeting.
package tokenizer

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// CharsPerToken is the rune-to-token ratio used by the heuristic counter.
const CharsPerToken = 4

// Tokenizer counts tokens in text. Implementations must be safe for
// concurrent use and must not fail on valid UTF-8.
type Tokenizer interface {
	Count(text string) int
}

// Heuristic approximates token counts as ceil(runes / CharsPerToken).
type Heuristic struct{}

// Count implements Tokenizer.
func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding (e.g. "cl100k_base").
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Tokenizer.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// New returns the tokenizer named by kind: "heuristic", or "tiktoken[:encoding]".
// A tiktoken encoding that cannot be loaded falls back to the heuristic.
func New(kind string) Tokenizer {
	name, encoding, _ := strings.Cut(kind, ":")
	switch strings.ToLower(name) {
	case "tiktoken":
		if encoding == "" {
			encoding = "cl100k_base"
		}
		tk, err := NewTiktoken(encoding)
		if err != nil {
			slog.Warn("tokenizer.fallback", "encoding", encoding, "err", err)
			return Heuristic{}
		}
		return tk
	default:
		return Heuristic{}
	}
}
