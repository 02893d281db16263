package technique

import (
	"context"
	"fmt"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// Baseline retrieves the top-k nearest chunks by raw vector similarity and
// asks the language model to answer from them directly. Given the same
// query, documents, and config it is deterministic modulo the underlying
// vector index and LLM's own determinism.
type Baseline struct {
	deps Deps
}

// NewBaseline constructs the baseline technique.
func NewBaseline(deps Deps) *Baseline { return &Baseline{deps: deps} }

func (b *Baseline) Name() string { return "baseline" }

func (b *Baseline) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "baseline retrieval starting", nil)

	retrieveStart := time.Now()
	vectors, err := b.deps.Embed.Embed(ctx, []string{req.Query})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(b.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query embedded", nil)

	k := topK(req.Config, 5)
	hits, err := b.deps.Vector.SimilaritySearch(ctx, vectors[0], k, vectorFilter(req.DocumentIDs))
	if err != nil {
		kind := types.ErrorKindRetrievalFailed
		if ctx.Err() != nil {
			kind = types.ErrorKindTimeout
		}
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(b.Name(), kind, err, tr, nil), nil
	}
	chunks := retrievedFromHits(hits, "vector")
	tr.Log("retrieve_complete", "vector search complete", map[string]any{
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
	answer, err := b.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the question using only the provided context. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(b.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    b.Name(),
		Answer:           answer,
		RetrievedChunks:  chunks,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}

func buildContextPrompt(query string, chunks []types.RetrievedChunk) string {
	out := "Context:\n"
	for _, c := range chunks {
		out += fmt.Sprintf("[%s] %s\n", c.ID, c.Text)
	}
	out += "\nQuestion: " + query
	return out
}

func timeoutFor(cfg Config) time.Duration {
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Second
	}
	return 30 * time.Second
}
