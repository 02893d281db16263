package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"ragarena/internal/ragengine/types"
)

type entry struct {
	chunk  types.Chunk
	vector []float32
}

// MemoryIndex is a cosine-similarity VectorIndex backed by a map, used as
// the default backend and in tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]entry // chunk ID -> entry
}

// NewMemoryIndex builds an empty MemoryIndex for vectors of the given
// dimension (0 means unconstrained; the first Upsert call fixes it).
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension, entries: make(map[string]entry)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if m.dimension == 0 {
			m.dimension = len(c.Vector)
		}
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		m.entries[c.ID] = entry{chunk: c.Chunk, vector: vec}
	}
	return nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.chunk.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MemoryIndex) SimilaritySearch(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k == 0 {
		return []Hit{}, nil
	}
	if k < 0 {
		k = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if !matchesFilter(e.chunk, filter) {
			continue
		}
		hits = append(hits, Hit{Chunk: e.chunk, Score: cosine(vector, e.vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) Dimension() int { return m.dimension }

func (m *MemoryIndex) Close() error { return nil }

// matchesFilter checks chunk against filter. The "document_id" key
// compares against chunk.DocumentID (a top-level Chunk field); every
// other key compares against chunk.Metadata.
func matchesFilter(chunk types.Chunk, filter Filter) bool {
	for k, values := range filter {
		actual := chunk.Metadata[k]
		if k == "document_id" {
			actual = chunk.DocumentID
		}
		if !containsString(values, actual) {
			return false
		}
	}
	return true
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
