package technique

import (
	"context"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// HyDE asks the language model to write a hypothetical answer to the
// query, embeds that hypothetical document instead of the raw query, and
// retrieves against it on the theory that an answer-shaped embedding sits
// closer to real answer-bearing chunks than a question-shaped one.
type HyDE struct {
	deps Deps
}

func NewHyDE(deps Deps) *HyDE { return &HyDE{deps: deps} }

func (h *HyDE) Name() string { return "hyde" }

func (h *HyDE) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "hyde generation starting", nil)

	retrieveStart := time.Now()
	hypothetical, err := h.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Write a short, plausible passage that would answer the question, even if you are not certain it is correct. Do not mention that it is hypothetical.",
		User:        req.Query,
		Temperature: temperature(req.Config, 0.3),
		MaxTokens:   maxTokens(req.Config, 256),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(h.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}

	vectors, err := h.deps.Embed.Embed(ctx, []string{hypothetical})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(h.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "hypothetical document embedded", nil)

	k := topK(req.Config, 5)
	hits, err := h.deps.Vector.SimilaritySearch(ctx, vectors[0], k, vectorFilter(req.DocumentIDs))
	if err != nil {
		kind := types.ErrorKindRetrievalFailed
		if ctx.Err() != nil {
			kind = types.ErrorKindTimeout
		}
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(h.Name(), kind, err, tr, nil), nil
	}
	chunks := retrievedFromHits(hits, "vector")
	tr.Log("retrieve_complete", "retrieval against hypothetical embedding complete", map[string]any{
		"result_count": len(chunks),
		"top_scores":   topScores(chunks, 3),
	})
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, chunks)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(chunks),
		"total_context_length": len(prompt),
	})

	tr.Log("generate_llm_call", "calling LLM", nil)
	answer, err := h.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the question using only the provided context. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(h.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    h.Name(),
		Answer:           answer,
		RetrievedChunks:  chunks,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}
