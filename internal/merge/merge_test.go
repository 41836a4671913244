package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/repo-graphrag/internal/graph"
	"github.com/DeusData/repo-graphrag/internal/store"
)

// letterEmbedder maps text to its lowercase letter histogram, so names that
// differ only in case embed identically.
type letterEmbedder struct {
	calls int
	err   error
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

func seed(t *testing.T, entities ...graph.Entity) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, e := range entities {
		require.NoError(t, s.UpsertEntity(context.Background(), e, "doc-"+e.FilePath()))
	}
	return s
}

func TestMergeAnchorsOnDocument(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Description: "parses input", Paths: []string{"a.md"}},
		graph.Entity{Name: "x.py:Parser", Description: "x impl", Paths: []string{"x.py"}},
		graph.Entity{Name: "y.py:Parser", Description: "y impl", Paths: []string{"y.py"}},
		graph.Entity{Name: "x.py:Tokenizer", Description: "tok", Paths: []string{"x.py"}},
	)

	m := New(s, &letterEmbedder{}, DefaultRules(), Options{})
	n, err := m.Merge(ctx, []string{"x.py", "y.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetNode(ctx, "Parser")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.md<SEP>x.py<SEP>y.py", got.FilePath())
	assert.Equal(t, "\nparses input<SEP>x.py:x impl<SEP>y.py:y impl", got.Description)

	for _, gone := range []string{"x.py:Parser", "y.py:Parser"} {
		ok, err := s.HasNode(ctx, gone)
		require.NoError(t, err)
		assert.False(t, ok, gone)
	}
	ok, _ := s.HasNode(ctx, "x.py:Tokenizer")
	assert.True(t, ok)
}

func TestMergedEntityAnchorsLaterPasses(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Description: "merged", Paths: []string{"a.md", "x.py"}},
		graph.Entity{Name: "z.py:parser", Description: "z impl", Paths: []string{"z.py"}},
	)

	n, err := New(s, &letterEmbedder{}, DefaultRules(), Options{}).Merge(ctx, []string{"z.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := s.GetNode(ctx, "Parser")
	assert.Equal(t, "a.md<SEP>x.py<SEP>z.py", got.FilePath())
}

func TestCodeOutsideRunIsNotMerged(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Paths: []string{"a.md"}},
		graph.Entity{Name: "x.py:Parser", Paths: []string{"x.py"}},
	)
	emb := &letterEmbedder{}
	n, err := New(s, emb, DefaultRules(), Options{}).Merge(ctx, []string{"other.py"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, emb.calls, "no code candidates, nothing to embed")
}

func TestColonEntityOutsideRunIsNotAnAnchor(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "x.py:Parser", Paths: []string{"x.py"}},
		graph.Entity{Name: "y.py:parser", Paths: []string{"y.py"}},
	)
	n, err := New(s, &letterEmbedder{}, DefaultRules(), Options{Threshold: 0.5}).Merge(ctx, []string{"y.py"})
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, name := range []string{"x.py:Parser", "y.py:parser"} {
		ok, err := s.HasNode(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestBelowThresholdIsNotMerged(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Paths: []string{"a.md"}},
		graph.Entity{Name: "x.py:Renderer", Paths: []string{"x.py"}},
	)
	n, err := New(s, &letterEmbedder{}, DefaultRules(), Options{}).Merge(ctx, []string{"x.py"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExcludedNamesAreIgnored(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Handler", Paths: []string{"a.md"}},
		graph.Entity{Name: "x.py:handler", Paths: []string{"x.py"}},
	)
	n, err := New(s, &letterEmbedder{}, DefaultRules(), Options{}).Merge(ctx, []string{"x.py"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbedderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Paths: []string{"a.md"}},
		graph.Entity{Name: "x.py:Parser", Paths: []string{"x.py"}},
	)
	boom := errors.New("boom")
	_, err := New(s, &letterEmbedder{err: boom}, DefaultRules(), Options{}).Merge(ctx, []string{"x.py"})
	assert.ErrorIs(t, err, boom)
}

func TestExecuteSkipsWhenSourcesGone(t *testing.T) {
	ctx := context.Background()
	s := seed(t, graph.Entity{Name: "Parser", Paths: []string{"a.md"}})
	m := New(s, &letterEmbedder{}, DefaultRules(), Options{})

	o := buildOp(match{
		doc:   candidate{name: "Parser", description: "d"},
		codes: []candidate{{name: "x.py:Parser", description: "c"}},
	})
	ok, err := m.execute(ctx, o)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildOp(t *testing.T) {
	o := buildOp(match{
		doc: candidate{name: "Parser", description: "doc"},
		codes: []candidate{
			{name: "x.py:Parser", description: "cx"},
			{name: "y.py:parser", description: "cy"},
		},
	})
	assert.Equal(t, []string{"Parser", "x.py:Parser", "y.py:parser"}, o.Sources)
	assert.Equal(t, "Parser", o.Target)
	assert.Equal(t, "\ndoc<SEP>x.py:cx<SEP>y.py:cy", o.Data.Description)
	assert.Equal(t, []string{"x.py:Parser", "y.py:parser"}, o.codeNames)
}

func TestShouldExclude(t *testing.T) {
	r := DefaultRules()
	r.CustomPatterns = []string{"get*", "Legacy"}

	tests := []struct {
		name string
		want bool
	}{
		{"__init__", true},
		{"calculateTax", false},
		{"a", true},
		{"x.py:__init__", true},
		{"x.py:_private", true},
		{"Main", true},
		{"x.py:FOO", true},
		{"12345", true},
		{"https://example.com", true},
		{"/usr/bin", true},
		{"+++", true},
		{"x.py:getValue", true},
		{"legacy", true},
		{"x.py:Parser", false},
		{strings.Repeat("n", 51), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.ShouldExclude(tt.name), tt.name)
	}

	r.ExcludePrivate = false
	assert.False(t, r.ShouldExclude("_private"))
}

func TestCollectUnmergedCodePaths(t *testing.T) {
	ctx := context.Background()
	s := seed(t,
		graph.Entity{Name: "Parser", Paths: []string{"a.md", "x.py"}},
		graph.Entity{Name: "x.py:Lexer", Paths: []string{"/repo/x.py"}},
		graph.Entity{Name: "x.py:Token", Paths: []string{"/repo/x.py"}},
		graph.Entity{Name: "notes.md:Section", Paths: []string{"/repo/notes.md"}},
		graph.Entity{Name: "y.go:Run", Paths: []string{"/repo/y.go"}},
	)
	paths, err := CollectUnmergedCodePaths(ctx, s, DefaultRules())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/repo/x.py", "/repo/y.go"}, paths)
}

func TestSearchIP(t *testing.T) {
	index := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	queries := [][]float32{{0, 2}}
	normalizeL2(index)
	normalizeL2(queries)

	hits := searchIP(index, queries, 2)
	require.Len(t, hits, 1)
	require.Len(t, hits[0], 2)
	assert.Equal(t, 1, hits[0][0].Index)
	assert.Equal(t, 2, hits[0][1].Index)
	assert.InDelta(t, 1.0, hits[0][0].Score, 1e-6)
	assert.InDelta(t, 0.8, hits[0][1].Score, 1e-6)
}
