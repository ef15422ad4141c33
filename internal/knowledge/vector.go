package knowledge

import (
	"container/heap"
	"math"
	"slices"

	"github.com/hpungsan/veileder/internal/catalog"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// better orders by score descending, then id ascending.
func better(a, b catalog.ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// topK keeps the k best chunks seen so far in a min-heap keyed on better.
type topK struct {
	k     int
	items []catalog.ScoredChunk
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]catalog.ScoredChunk, 0, k)}
}

func (t *topK) Len() int           { return len(t.items) }
func (t *topK) Less(i, j int) bool { return better(t.items[j], t.items[i]) }
func (t *topK) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)         { t.items = append(t.items, x.(catalog.ScoredChunk)) }
func (t *topK) Pop() any {
	last := t.items[len(t.items)-1]
	t.items = t.items[:len(t.items)-1]
	return last
}

func (t *topK) push(c catalog.ScoredChunk) {
	if len(t.items) < t.k {
		heap.Push(t, c)
		return
	}
	if better(c, t.items[0]) {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// sorted returns the kept chunks, best first.
func (t *topK) sorted() []catalog.ScoredChunk {
	out := slices.Clone(t.items)
	slices.SortFunc(out, func(a, b catalog.ScoredChunk) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		}
		return 0
	})
	return out
}
