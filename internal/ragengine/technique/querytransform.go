package technique

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// QueryTransform rewrites the query before retrieval using one of three
// strategies selected via rag_config["mode"] (default "rewrite"):
//   - rewrite: a clearer, retrieval-friendly restatement of the query
//   - stepback: a more general question the original is an instance of
//   - decompose: 2-4 sub-questions, each retrieved independently and merged
type QueryTransform struct {
	deps Deps
}

func NewQueryTransform(deps Deps) *QueryTransform { return &QueryTransform{deps: deps} }

func (q *QueryTransform) Name() string { return "query_transform" }

func (q *QueryTransform) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	mode := transformMode(req.Config)
	tr.Log("init", "query transform starting", map[string]any{"mode": mode})

	retrieveStart := time.Now()
	var queries []string
	switch mode {
	case "stepback":
		rewritten, err := q.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			System:      "Rewrite the question as a more general step-back question it is a specific instance of. Respond with only the rewritten question.",
			User:        req.Query,
			Temperature: temperature(req.Config, 0.0),
			MaxTokens:   maxTokens(req.Config, 128),
			Timeout:     timeoutFor(req.Config),
		})
		if err != nil {
			tr.Log("retrieve_prepare_error", err.Error(), nil)
			return errorResult(q.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
		}
		queries = []string{strings.TrimSpace(rewritten)}
	case "decompose":
		decomposed, err := q.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			System:      decomposeSystemPrompt(req.Config),
			User:        req.Query,
			Temperature: temperature(req.Config, 0.0),
			MaxTokens:   maxTokens(req.Config, 256),
			Timeout:     timeoutFor(req.Config),
		})
		if err != nil {
			tr.Log("retrieve_prepare_error", err.Error(), nil)
			return errorResult(q.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
		}
		queries = splitLines(decomposed)
		if len(queries) == 0 {
			queries = []string{req.Query}
		}
	default: // rewrite
		rewritten, err := q.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			System:      "Rewrite the question to be clearer and more specific for document retrieval, preserving its meaning. Respond with only the rewritten question.",
			User:        req.Query,
			Temperature: temperature(req.Config, 0.0),
			MaxTokens:   maxTokens(req.Config, 128),
			Timeout:     timeoutFor(req.Config),
		})
		if err != nil {
			tr.Log("retrieve_prepare_error", err.Error(), nil)
			return errorResult(q.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
		}
		queries = []string{strings.TrimSpace(rewritten)}
	}
	tr.Log("retrieve_prepare", "query transformed", map[string]any{"queries": queries})

	k := topK(req.Config, 5)
	byID := map[string]types.RetrievedChunk{}
	order := make([]string, 0)
	for _, sub := range queries {
		vectors, err := q.deps.Embed.Embed(ctx, []string{sub})
		if err != nil {
			tr.Log("retrieve_complete_error", err.Error(), map[string]any{"query": sub})
			return errorResult(q.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
		}
		hits, err := q.deps.Vector.SimilaritySearch(ctx, vectors[0], k, vectorFilter(req.DocumentIDs))
		if err != nil {
			kind := types.ErrorKindRetrievalFailed
			if ctx.Err() != nil {
				kind = types.ErrorKindTimeout
			}
			tr.Log("retrieve_complete_error", err.Error(), map[string]any{"query": sub})
			return errorResult(q.Name(), kind, err, tr, nil), nil
		}
		// Deduplicate by chunk ID across sub-queries, keeping the max
		// score seen for that ID rather than the first occurrence.
		for _, c := range retrievedFromHits(hits, "vector") {
			existing, ok := byID[c.ID]
			if !ok {
				byID[c.ID] = c
				order = append(order, c.ID)
				continue
			}
			if c.Score > existing.Score {
				byID[c.ID] = c
			}
		}
	}
	merged := make([]types.RetrievedChunk, len(order))
	for i, id := range order {
		merged[i] = byID[id]
	}
	tr.Log("retrieve_complete", "sub-query retrieval merged", map[string]any{
		"result_count": len(merged),
		"top_scores":   topScores(merged, 3),
	})
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, merged)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(merged),
		"total_context_length": len(prompt),
	})

	tr.Log("generate_llm_call", "calling LLM", nil)
	answer, err := q.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the original question using only the provided context. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(q.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    q.Name(),
		Answer:           answer,
		RetrievedChunks:  merged,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}

// decomposeSystemPrompt asks for exactly cfg.Extra["n"] sub-questions when
// set (adaptive's analytical route forces n=3), otherwise a flexible 2-4.
func decomposeSystemPrompt(cfg Config) string {
	if cfg.Extra != nil {
		if n, ok := cfg.Extra["n"].(int); ok && n > 0 {
			return fmt.Sprintf("Break the question into exactly %d independent sub-questions whose answers together address it. Respond with one sub-question per line, nothing else.", n)
		}
	}
	return "Break the question into 2 to 4 independent sub-questions whose answers together address it. Respond with one sub-question per line, nothing else."
}

func transformMode(cfg Config) string {
	if cfg.Extra == nil {
		return "rewrite"
	}
	if m, ok := cfg.Extra["mode"].(string); ok {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "stepback" || m == "decompose" {
			return m
		}
	}
	return "rewrite"
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(l, "-*0123456789. "))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
