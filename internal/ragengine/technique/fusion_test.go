package technique

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/index"
	"ragarena/internal/ragengine/trace"
	"ragarena/internal/ragengine/types"
)

// scriptedEmbed returns a fixed vector per known text (falling back to a
// distant, orthogonal vector for anything else), letting a test control
// which chunks are "semantically close" to a query independent of wording.
type scriptedEmbed struct {
	vectors map[string][]float32
}

func (s *scriptedEmbed) Dimension() int { return 2 }

func (s *scriptedEmbed) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestFusionRanksBothMatchingChunkFirst(t *testing.T) {
	t.Parallel()

	query := "capital of france"
	both := "Paris is the capital of France."      // lexically and semantically close
	semanticOnly := "Where Gauls once ruled, a city stands." // no lexical overlap
	lexicalOnly := "The capital of France has bad traffic but no relation to our topic at all." // lexical overlap, distant embedding

	embed := &scriptedEmbed{vectors: map[string][]float32{
		query:         {1, 0},
		both:          {1, 0},
		semanticOnly:  {1, 0},
		lexicalOnly:   {0, 1},
	}}

	vec := index.NewMemoryIndex(2)
	chunks := []types.EmbeddedChunk{
		{Chunk: types.Chunk{ID: "both", DocumentID: "doc1", Text: both}, Vector: embed.vectors[both]},
		{Chunk: types.Chunk{ID: "semantic", DocumentID: "doc1", Text: semanticOnly}, Vector: embed.vectors[semanticOnly]},
		{Chunk: types.Chunk{ID: "lexical", DocumentID: "doc1", Text: lexicalOnly}, Vector: embed.vectors[lexicalOnly]},
	}
	require.NoError(t, vec.Upsert(context.Background(), chunks))

	deps := Deps{Vector: vec, LLM: &fakeLLM{answer: "Paris."}, Embed: embed}
	fusion := NewFusion(deps)

	result, err := fusion.Answer(context.Background(), AnswerRequest{
		Query:    query,
		Config:   Config{TopK: 3, WeightVec: 0.5, WeightLex: 0.5},
		Recorder: trace.New(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.RetrievedChunks)
	require.Equal(t, "both", result.RetrievedChunks[0].ID)
}

func TestFusionPoolSizeFloorsAtTen(t *testing.T) {
	t.Parallel()

	require.Equal(t, 10, fusionPoolSize(3))
	require.Equal(t, 10, fusionPoolSize(10))
	require.Equal(t, 15, fusionPoolSize(15))
}
