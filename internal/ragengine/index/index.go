// Package index implements ragarena's Vector Index Client: a pluggable
// nearest-neighbor store over EmbeddedChunks, with an in-memory backend for
// tests and a Qdrant-backed implementation for production use.
package index

import (
	"context"

	"ragarena/internal/ragengine/types"
)

// Filter narrows a similarity search to chunks whose metadata matches. Each
// key's value list is OR'd (the chunk matches if its value is any one of
// them); multiple keys are AND'd. The key "document_id" is special-cased
// by every backend to match Chunk.DocumentID rather than Chunk.Metadata,
// since document_id is a first-class Chunk field, not metadata.
type Filter map[string][]string

// Hit is one nearest-neighbor match, reconstituted as a Chunk with score.
type Hit struct {
	Chunk types.Chunk
	Score float64
}

// VectorIndex is the C1 contract every retrieval technique depends on.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
	Dimension() int
	Close() error
}
