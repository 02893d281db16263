package technique

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/index"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/trace"
	"ragarena/internal/ragengine/types"
)

// scriptedLLM inspects the system prompt to decide which stage is calling
// and answers accordingly, so a single fake can drive the whole
// retrieval-decision / relevance-filter / generate-and-score loop.
type scriptedLLM struct {
	needsRetrieval bool
	relevant       bool
	answer         string
	support        string
	utility        string
}

func (s *scriptedLLM) Complete(ctx context.Context, req llmclient.CompletionRequest) (string, error) {
	system := strings.ToLower(req.System)
	switch {
	case strings.Contains(system, "require looking up specific documents"):
		if s.needsRetrieval {
			return "yes", nil
		}
		return "no", nil
	case strings.Contains(system, "label this passage's relevance"):
		if s.relevant {
			return "fully_relevant", nil
		}
		return "not_relevant", nil
	case strings.Contains(system, "is this answer supported"):
		return s.support, nil
	case strings.Contains(system, "how useful is this answer"):
		return s.utility, nil
	case strings.Contains(system, "answer the question using only the provided context"):
		return s.answer, nil
	}
	return "", nil
}

func TestSelfReflectiveSkipsRetrievalWhenNotNeeded(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	llm := &scriptedLLM{needsRetrieval: false, answer: "General knowledge answer.", support: "fully", utility: "4"}
	sr := NewSelfReflective(Deps{Vector: vec, LLM: llm, Embed: embed})

	result, err := sr.Answer(context.Background(), AnswerRequest{
		Query:    "What is 2+2?",
		Config:   Config{TopK: 3},
		Recorder: trace.New(),
	})
	require.NoError(t, err)
	require.Equal(t, types.ErrorKindNone, result.ErrorKind)
	require.Empty(t, result.RetrievedChunks)
	require.NotEmpty(t, result.Answer)

	var sawDecision bool
	for _, e := range result.Trace {
		if e.Step == "retrieve_prepare" {
			sawDecision = true
			require.Equal(t, false, e.Details["needed"])
		}
	}
	require.True(t, sawDecision)
	require.GreaterOrEqual(t, result.RetrievalTimeMS, int64(0))
	require.GreaterOrEqual(t, result.GenerationTimeMS, int64(0))
}

func TestSelfReflectiveDropsNotRelevantCandidates(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	llm := &scriptedLLM{needsRetrieval: true, relevant: false, answer: "Paris.", support: "fully", utility: "5"}
	sr := NewSelfReflective(Deps{Vector: vec, LLM: llm, Embed: embed})

	result, err := sr.Answer(context.Background(), AnswerRequest{
		Query:    "What is the capital of France?",
		Config:   Config{TopK: 2},
		Recorder: trace.New(),
	})
	require.NoError(t, err)
	require.Empty(t, result.RetrievedChunks)
}

func TestSelfReflectiveCompositeScorePicksBestCandidate(t *testing.T) {
	t.Parallel()

	embed := embedclient.NewDeterministic(64, true, 0)
	vec := index.NewMemoryIndex(64)
	seedCorpus(t, embed, vec)

	llm := &scriptedLLM{needsRetrieval: true, relevant: true, answer: "Paris is the capital of France.", support: "fully", utility: "5"}
	sr := NewSelfReflective(Deps{Vector: vec, LLM: llm, Embed: embed})

	result, err := sr.Answer(context.Background(), AnswerRequest{
		Query:    "What is the capital of France?",
		Config:   Config{TopK: 2},
		Recorder: trace.New(),
	})
	require.NoError(t, err)
	require.Equal(t, "Paris is the capital of France.", result.Answer)
	require.NotEmpty(t, result.RetrievedChunks)
}
