package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

type fakeScorer struct {
	response string
}

func (f *fakeScorer) Complete(ctx context.Context, req llmclient.CompletionRequest) (string, error) {
	return f.response, nil
}

func TestDimensionalSkipsFaithfulnessWhenNoRetrievedChunks(t *testing.T) {
	t.Parallel()

	d := NewDimensional(&fakeScorer{response: "8 - well done"})
	score, err := d.Evaluate(context.Background(), types.QARecord{ID: "r1", Query: "hi", Answer: "hello there"})
	require.NoError(t, err)
	require.Nil(t, score.Faithfulness)
	require.NotNil(t, score.Relevance)
	require.NotNil(t, score.Overall)
	require.Equal(t, 8.0, *score.Overall)
}

func TestDimensionalIncludesFaithfulnessWhenChunksPresent(t *testing.T) {
	t.Parallel()

	d := NewDimensional(&fakeScorer{response: "7"})
	score, err := d.Evaluate(context.Background(), types.QARecord{
		ID:     "r1",
		Query:  "hi",
		Answer: "hello there",
		RetrievedChunks: []types.RetrievedChunk{
			{Chunk: types.Chunk{ID: "c1", Text: "context"}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, score.Faithfulness)
	require.Equal(t, 7.0, *score.Faithfulness)
}

func TestDimensionalUnparsableResponseScoresZeroWithoutAborting(t *testing.T) {
	t.Parallel()

	d := NewDimensional(&fakeScorer{response: "I refuse to answer"})
	score, err := d.Evaluate(context.Background(), types.QARecord{ID: "r1", Query: "hi", Answer: "hello"})
	require.NoError(t, err)
	require.Equal(t, types.ErrorKindNone, score.ErrorKind)
	require.NotNil(t, score.Relevance)
	require.Equal(t, 0.0, *score.Relevance)
}
