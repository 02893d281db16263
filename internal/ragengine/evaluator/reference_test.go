package evaluator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

type scriptedReferenceLLM struct{}

func (s *scriptedReferenceLLM) Complete(ctx context.Context, req llmclient.CompletionRequest) (string, error) {
	switch {
	case strings.Contains(req.System, "every claim in the answer"):
		return "0.9", nil
	case strings.Contains(req.System, "plausible questions"):
		return "What is the capital of France?\nWhich city is France's capital?\nName France's capital city.", nil
	case strings.Contains(req.System, "fraction of the retrieved context"):
		return "0.8", nil
	case strings.Contains(req.System, "how completely the retrieved context"):
		return "0.7", nil
	}
	return "0.5", nil
}

func TestReferenceMetricNestsMetadataUnderReferenceScores(t *testing.T) {
	t.Parallel()

	rm := NewReferenceMetric(&scriptedReferenceLLM{}, embedclient.NewDeterministic(32, true, 0), 4)
	defer rm.Close()

	score, err := rm.Evaluate(context.Background(), types.QARecord{
		ID:     "r1",
		Query:  "What is the capital of France?",
		Answer: "Paris is the capital of France.",
		RetrievedChunks: []types.RetrievedChunk{
			{Chunk: types.Chunk{ID: "c1", Text: "Paris is the capital of France."}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, types.ErrorKindNone, score.ErrorKind)

	refScores, ok := score.Metadata["reference_scores"].(map[string]any)
	require.True(t, ok, "metadata must nest under reference_scores")
	require.Contains(t, refScores, "faithfulness")
	require.Contains(t, refScores, "answer_relevancy")
	require.Contains(t, refScores, "context_precision")
	require.Contains(t, refScores, "context_recall")

	relevancy, ok := refScores["answer_relevancy"].(float64)
	require.True(t, ok)
	require.Greater(t, relevancy, 0.0)
}

func TestReferenceMetricRunsConcurrentJobsAcrossWorkerPool(t *testing.T) {
	t.Parallel()

	rm := NewReferenceMetric(&scriptedReferenceLLM{}, embedclient.NewDeterministic(32, true, 0), 4)
	defer rm.Close()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := rm.Evaluate(context.Background(), types.QARecord{
				ID:     "concurrent",
				Query:  "What is the capital of France?",
				Answer: "Paris.",
				RetrievedChunks: []types.RetrievedChunk{
					{Chunk: types.Chunk{ID: "c1", Text: "Paris is the capital of France."}},
				},
			})
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}

func TestReferenceMetricTreatsZeroConcurrencyAsOne(t *testing.T) {
	t.Parallel()

	rm := NewReferenceMetric(&scriptedReferenceLLM{}, embedclient.NewDeterministic(32, true, 0), 0)
	defer rm.Close()

	score, err := rm.Evaluate(context.Background(), types.QARecord{
		ID:     "r3",
		Query:  "What is the capital of France?",
		Answer: "Paris.",
	})
	require.NoError(t, err)
	require.Equal(t, types.ErrorKindNone, score.ErrorKind)
}

func TestReferenceMetricSkipsContextMetricsWithoutChunks(t *testing.T) {
	t.Parallel()

	rm := NewReferenceMetric(&scriptedReferenceLLM{}, embedclient.NewDeterministic(32, true, 0), 4)
	defer rm.Close()

	score, err := rm.Evaluate(context.Background(), types.QARecord{
		ID:     "r2",
		Query:  "What is the capital of France?",
		Answer: "Paris.",
	})
	require.NoError(t, err)
	refScores := score.Metadata["reference_scores"].(map[string]any)
	require.NotContains(t, refScores, "faithfulness")
	require.NotContains(t, refScores, "context_precision")
	require.NotContains(t, refScores, "context_recall")
	require.Contains(t, refScores, "answer_relevancy")
}
