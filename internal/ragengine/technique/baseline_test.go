package technique

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/index"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/trace"
	"ragarena/internal/ragengine/types"
)

// fakeLLM returns a fixed answer regardless of prompt content, mirroring
// the fixed-answer fake used by the spec's baseline happy-path scenario.
type fakeLLM struct {
	answer string
}

func (f *fakeLLM) Complete(ctx context.Context, req llmclient.CompletionRequest) (string, error) {
	return f.answer, nil
}

func seedCorpus(t *testing.T, embed embedclient.Client, vec index.VectorIndex) {
	t.Helper()
	texts := []string{
		"Paris is the capital of France.",
		"Berlin is in Germany.",
		"The Seine runs through Paris.",
	}
	ids := []string{"c1", "c2", "c3"}
	vectors, err := embed.Embed(context.Background(), texts)
	require.NoError(t, err)

	chunks := make([]types.EmbeddedChunk, len(texts))
	for i := range texts {
		chunks[i] = types.EmbeddedChunk{
			Chunk:  types.Chunk{ID: ids[i], DocumentID: "doc1", Position: i, Text: texts[i]},
			Vector: vectors[i],
		}
	}
	require.NoError(t, vec.Upsert(context.Background(), chunks))
}

func TestBaselineHappyPath(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	deps := Deps{Vector: vec, LLM: &fakeLLM{answer: "The capital of France is Paris."}, Embed: embed}
	baseline := NewBaseline(deps)

	result, err := baseline.Answer(context.Background(), AnswerRequest{
		Query:    "What is the capital of France?",
		Config:   Config{TopK: 2},
		Recorder: trace.New(),
	})

	require.NoError(t, err)
	require.Equal(t, types.ErrorKindNone, result.ErrorKind)
	require.Contains(t, result.Answer, "Paris")
	require.Len(t, result.RetrievedChunks, 2)

	var sawRetrieveComplete bool
	for _, e := range result.Trace {
		if e.Step == "retrieve_complete" {
			sawRetrieveComplete = true
			require.Equal(t, 2, e.Details["result_count"])
		}
	}
	require.True(t, sawRetrieveComplete)
	require.Greater(t, result.RetrievalTimeMS, int64(-1))
	require.Greater(t, result.GenerationTimeMS, int64(-1))
}

func TestBaselineIsDeterministicAcrossRuns(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	deps := Deps{Vector: vec, LLM: &fakeLLM{answer: "Paris."}, Embed: embed}
	baseline := NewBaseline(deps)

	req := AnswerRequest{Query: "What is the capital of France?", Config: Config{TopK: 2}}

	req.Recorder = trace.New()
	first, err := baseline.Answer(context.Background(), req)
	require.NoError(t, err)

	req.Recorder = trace.New()
	second, err := baseline.Answer(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.RetrievedChunks, second.RetrievedChunks)
}

func TestBaselineFiltersByDocumentIDs(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)
	otherTexts := []string{"Rome is the capital of Italy."}
	otherVectors, err := embed.Embed(context.Background(), otherTexts)
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(context.Background(), []types.EmbeddedChunk{
		{Chunk: types.Chunk{ID: "c4", DocumentID: "doc2", Position: 0, Text: otherTexts[0]}, Vector: otherVectors[0]},
	}))

	deps := Deps{Vector: vec, LLM: &fakeLLM{answer: "Paris is the capital of France."}, Embed: embed}
	baseline := NewBaseline(deps)

	result, err := baseline.Answer(context.Background(), AnswerRequest{
		Query:       "What is the capital?",
		DocumentIDs: []string{"doc1"},
		Config:      Config{TopK: 10},
		Recorder:    trace.New(),
	})
	require.NoError(t, err)
	require.Len(t, result.RetrievedChunks, 3)
	for _, c := range result.RetrievedChunks {
		require.Equal(t, "doc1", c.DocumentID)
	}
}

func TestBaselineTopKZeroSkipsRetrievalButStillGenerates(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	deps := Deps{Vector: vec, LLM: &fakeLLM{answer: "An answer with no context."}, Embed: embed}
	baseline := NewBaseline(deps)

	result, err := baseline.Answer(context.Background(), AnswerRequest{
		Query:    "Anything",
		Config:   Config{TopK: 0},
		Recorder: trace.New(),
	})
	require.NoError(t, err)
	require.Empty(t, result.RetrievedChunks)
	require.NotEmpty(t, result.Answer)
}
