// Package lexical implements ragarena's Lexical Index: an ephemeral BM25
// index built fresh for each query-session over the session's candidate
// chunks, using bleve's in-memory index rather than hand-rolled term
// statistics.
package lexical

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"ragarena/internal/ragengine/types"
)

// Hit is one lexical match, with bleve's BM25-derived relevance score.
type Hit struct {
	ChunkID string
	Score   float64
}

// Index is a short-lived, in-memory full-text index over a fixed set of
// chunks, built once per query-session and discarded after use.
type Index struct {
	index bleve.Index
}

// Build indexes the given chunks into a new in-memory bleve index. The
// returned Index must be closed by the caller.
func Build(ctx context.Context, chunks []types.Chunk) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, fmt.Errorf("lexical: create index: %w", err)
	}
	batch := idx.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveDocument{Text: c.Text}); err != nil {
			idx.Close()
			return nil, fmt.Errorf("lexical: batch chunk %s: %w", c.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, fmt.Errorf("lexical: index batch: %w", err)
	}
	return &Index{index: idx}, nil
}

type bleveDocument struct {
	Text string `json:"text"`
}

func indexMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "en"
	docMapping.AddFieldMappingsAt("text", textField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = docMapping
	im.ScoringModel = "bm25"
	return im
}

// Search returns the top-k chunk IDs ranked by BM25 score for the query.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying in-memory index.
func (i *Index) Close() error {
	if i == nil || i.index == nil {
		return nil
	}
	return i.index.Close()
}
