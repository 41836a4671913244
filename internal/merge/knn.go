package merge

import (
	"math"
	"sort"
)

// neighbor is one search hit: index into the indexed vectors and its score.
type neighbor struct {
	Index int
	Score float32
}

// normalizeL2 scales each vector to unit length in place. Zero vectors are
// left untouched.
func normalizeL2(vecs [][]float32) {
	for _, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum == 0 {
			continue
		}
		inv := float32(1 / math.Sqrt(sum))
		for i := range v {
			v[i] *= inv
		}
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// searchIP returns, for every query, the k indexed vectors with the highest
// inner product, best first. Equal scores keep index order.
func searchIP(index, queries [][]float32, k int) [][]neighbor {
	if k > len(index) {
		k = len(index)
	}
	out := make([][]neighbor, len(queries))
	for qi, q := range queries {
		hits := make([]neighbor, len(index))
		for i, v := range index {
			hits[i] = neighbor{Index: i, Score: dot(q, v)}
		}
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
		out[qi] = hits[:k]
	}
	return out
}
