package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/types"
)

func seedThreeDocuments(t *testing.T, idx VectorIndex) {
	t.Helper()
	chunks := []types.EmbeddedChunk{
		{Chunk: types.Chunk{ID: "a1", DocumentID: "docA", Text: "from doc A"}, Vector: []float32{1, 0}},
		{Chunk: types.Chunk{ID: "b1", DocumentID: "docB", Text: "from doc B"}, Vector: []float32{1, 0}},
		{Chunk: types.Chunk{ID: "c1", DocumentID: "docC", Text: "from doc C"}, Vector: []float32{1, 0}},
	}
	require.NoError(t, idx.Upsert(context.Background(), chunks))
}

func TestMemoryIndexFiltersBySingleDocumentID(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex(2)
	seedThreeDocuments(t, idx)

	hits, err := idx.SimilaritySearch(context.Background(), []float32{1, 0}, 10, Filter{"document_id": {"docA"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "docA", hits[0].Chunk.DocumentID)
}

func TestMemoryIndexFiltersByMultipleDocumentIDs(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex(2)
	seedThreeDocuments(t, idx)

	hits, err := idx.SimilaritySearch(context.Background(), []float32{1, 0}, 10, Filter{"document_id": {"docA", "docC"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	got := map[string]bool{}
	for _, h := range hits {
		got[h.Chunk.DocumentID] = true
	}
	require.True(t, got["docA"])
	require.True(t, got["docC"])
	require.False(t, got["docB"])
}

func TestMemoryIndexNoFilterReturnsEverything(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex(2)
	seedThreeDocuments(t, idx)

	hits, err := idx.SimilaritySearch(context.Background(), []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
}

func TestMemoryIndexMetadataFilterStillWorks(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex(2)
	require.NoError(t, idx.Upsert(context.Background(), []types.EmbeddedChunk{
		{Chunk: types.Chunk{ID: "x1", DocumentID: "docX", Metadata: map[string]string{"lang": "en"}}, Vector: []float32{1, 0}},
		{Chunk: types.Chunk{ID: "x2", DocumentID: "docX", Metadata: map[string]string{"lang": "fr"}}, Vector: []float32{1, 0}},
	}))

	hits, err := idx.SimilaritySearch(context.Background(), []float32{1, 0}, 10, Filter{"lang": {"fr"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "x2", hits[0].Chunk.ID)
}
