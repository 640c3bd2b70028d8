// Package vectorindex implements the character n-gram TF-IDF vector
// index (spec.md §4.I): L2-normalized n=3..5 n-gram vectors, cosine
// similarity search, in both a persistent watchlist mode and an
// ephemeral ad-hoc mode built from the current request's patterns.
package vectorindex

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

const (
	minNGram = 3
	maxNGram = 5
)

// Doc is one indexed document (spec.md §3 WatchlistDoc, restricted to
// what the vector index needs).
type Doc struct {
	ID   string
	Text string
}

// Hit is a single search result.
type Hit struct {
	DocID      string
	Cosine     float64
	Confidence float64
	ReasonCode reason.Code
}

// vector is a sparse, L2-normalized n-gram weight map.
type vector map[string]float64

// snapshot is one immutable, fully-built index generation. Index swaps
// this pointer under a lock so in-flight searches see one consistent
// generation (spec.md §4.I: "in-flight search calls see a consistent
// version").
type snapshot struct {
	docVectors map[string]vector // docID -> vector
	docText    map[string]string
	idf        map[string]float64
}

// Index is a process-wide, concurrency-safe TF-IDF vector index.
// Mirrors the RWMutex-guarded snapshot-swap discipline of a runtime
// registry: readers take a read lock only long enough to copy the
// current snapshot pointer, then search against their own reference.
type Index struct {
	mu  sync.RWMutex
	cur *snapshot
}

// New returns an empty, ready-to-search index (the persistent
// watchlist mode starts here and is populated by Load/Reload).
func New() *Index {
	return &Index{cur: emptySnapshot()}
}

func emptySnapshot() *snapshot {
	return &snapshot{docVectors: map[string]vector{}, docText: map[string]string{}, idf: map[string]float64{}}
}

// Load builds a fresh snapshot from docs and atomically replaces the
// current index generation (spec.md §4.I "atomic replace").
func (ix *Index) Load(docs []Doc) {
	snap := build(docs)
	ix.mu.Lock()
	ix.cur = snap
	ix.mu.Unlock()
}

// Overlay builds a snapshot from docs and merges it into the existing
// index rather than replacing it (spec.md §4.I "overlay adds to the
// existing index"). IDF weights are recomputed over the merged corpus.
func (ix *Index) Overlay(docs []Doc) {
	ix.mu.RLock()
	existing := ix.cur
	ix.mu.RUnlock()

	merged := make([]Doc, 0, len(existing.docText)+len(docs))
	for id, text := range existing.docText {
		merged = append(merged, Doc{ID: id, Text: text})
	}
	merged = append(merged, docs...)

	snap := build(merged)
	ix.mu.Lock()
	ix.cur = snap
	ix.mu.Unlock()
}

// Search returns the top-k documents by cosine similarity to text,
// mapped to candidate confidence per spec.md §4.I:
// 0.40 + 0.50*clip(cosine, 0, 1).
func (ix *Index) Search(text string, k int) []Hit {
	ix.mu.RLock()
	snap := ix.cur
	ix.mu.RUnlock()
	return search(snap, text, k)
}

// EphemeralIndex builds a small ad-hoc, unsynchronized index over pool
// (e.g. the current request's tier-1/tier-2 AC patterns) for use when
// no persistent watchlist index is ready (spec.md §4.I "ephemeral
// mode").
func EphemeralIndex(pool []Doc) *Index {
	return &Index{cur: build(pool)}
}

func search(snap *snapshot, text string, k int) []Hit {
	if snap == nil || k <= 0 {
		return nil
	}
	qVec := vectorize(text, snap.idf)
	type scored struct {
		id string
		s  float64
	}
	var scoredDocs []scored
	for id, dv := range snap.docVectors {
		s := cosine(qVec, dv)
		if s <= 0 {
			continue
		}
		scoredDocs = append(scoredDocs, scored{id: id, s: s})
	}
	sort.Slice(scoredDocs, func(i, j int) bool { return scoredDocs[i].s > scoredDocs[j].s })
	if len(scoredDocs) > k {
		scoredDocs = scoredDocs[:k]
	}
	hits := make([]Hit, 0, len(scoredDocs))
	for _, sd := range scoredDocs {
		clipped := sd.s
		if clipped < 0 {
			clipped = 0
		}
		if clipped > 1 {
			clipped = 1
		}
		hits = append(hits, Hit{
			DocID:      sd.id,
			Cosine:     sd.s,
			Confidence: 0.40 + 0.50*clipped,
			ReasonCode: reasonForMatch(snap.docText[sd.id]),
		})
	}
	return hits
}

// reasonForMatch applies spec.md §4.I's RC_ALIAS-for-multi-word,
// RC_TYPO-for-single-word rule, based on the matched document's own
// text shape.
func reasonForMatch(docText string) reason.Code {
	if strings.Contains(strings.TrimSpace(docText), " ") {
		return reason.Alias
	}
	return reason.Typo
}

func build(docs []Doc) *snapshot {
	snap := emptySnapshot()
	df := map[string]int{} // document frequency per n-gram

	rawGrams := make(map[string]map[string]int, len(docs)) // docID -> gram -> count
	for _, d := range docs {
		grams := nGramCounts(d.Text)
		rawGrams[d.ID] = grams
		snap.docText[d.ID] = d.Text
		for g := range grams {
			df[g]++
		}
	}

	n := float64(len(docs))
	if n == 0 {
		n = 1
	}
	for g, count := range df {
		snap.idf[g] = math.Log(1 + n/float64(count))
	}

	for docID, grams := range rawGrams {
		snap.docVectors[docID] = tfidfVector(grams, snap.idf)
	}

	return snap
}

func vectorize(text string, idf map[string]float64) vector {
	grams := nGramCounts(text)
	return tfidfVector(grams, idf)
}

func tfidfVector(grams map[string]int, idf map[string]float64) vector {
	v := make(vector, len(grams))
	var norm2 float64
	for g, count := range grams {
		weight := float64(count) * idf[g]
		v[g] = weight
		norm2 += weight * weight
	}
	if norm2 == 0 {
		return v
	}
	norm := math.Sqrt(norm2)
	for g, w := range v {
		v[g] = w / norm
	}
	return v
}

func cosine(a, b vector) float64 {
	// Both vectors are already L2-normalized, so the dot product alone
	// is the cosine similarity.
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var dot float64
	for g, w := range small {
		if wo, ok := large[g]; ok {
			dot += w * wo
		}
	}
	return dot
}

// nGramCounts tokenizes text into whitespace-free lowercase runs and
// counts character n-grams of length minNGram..maxNGram within each
// run, per spec.md §3 ("character-n-gram TF-IDF vectors (n=3..5)").
func nGramCounts(text string) map[string]int {
	counts := map[string]int{}
	lower := strings.ToLower(text)
	for _, run := range strings.Fields(lower) {
		runes := []rune(run)
		for n := minNGram; n <= maxNGram; n++ {
			if len(runes) < n {
				continue
			}
			for i := 0; i+n <= len(runes); i++ {
				counts[string(runes[i:i+n])]++
			}
		}
	}
	return counts
}
