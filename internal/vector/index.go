// Package vector provides the similarity index: embeddings of row
// projections stored for nearest-neighbor lookup. The index is
// process-local and rebuildable from raw_rows; it is never the source of
// truth.
package vector

import (
	"math"
	"sort"
	"sync"
)

// Match is one nearest-neighbor result.
type Match struct {
	ID       string
	Distance float64
}

type entry struct {
	id  string
	vec []float32
	seq int
}

// Index is an in-memory cosine-distance index, safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
	nextSeq int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]int)}
}

// Upsert stores or replaces the vector for an id. Replacing keeps the
// original insertion order so tie-breaking stays stable.
func (ix *Index) Upsert(id string, vec []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if pos, ok := ix.byID[id]; ok {
		ix.entries[pos].vec = vec
		return
	}
	ix.byID[id] = len(ix.entries)
	ix.entries = append(ix.entries, entry{id: id, vec: vec, seq: ix.nextSeq})
	ix.nextSeq++
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Query returns the k nearest neighbors by cosine distance, lowest first.
// Ties break by insertion order.
func (ix *Index) Query(vec []float32, k int) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.entries) == 0 {
		return nil
	}

	type scored struct {
		Match
		seq int
	}
	results := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, scored{
			Match: Match{ID: e.id, Distance: cosineDistance(vec, e.vec)},
			seq:   e.seq,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].seq < results[j].seq
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].Match
	}
	return out
}

// cosineDistance is 1 - cosine similarity. Mismatched or zero vectors get
// the maximum distance so they sort last rather than erroring.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
