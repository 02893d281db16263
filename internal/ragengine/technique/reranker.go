package technique

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// Reranker retrieves a wider vector candidate pool, then asks the language
// model to score each candidate 0-10 for relevance to the query, and
// answers from the re-ordered top-k. A candidate the model fails to score
// falls back to its normalized vector score rather than dropping out, so a
// single bad LLM response degrades rather than breaks the technique.
type Reranker struct {
	deps Deps
}

func NewReranker(deps Deps) *Reranker { return &Reranker{deps: deps} }

func (r *Reranker) Name() string { return "reranker" }

func (r *Reranker) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "reranker retrieval starting", nil)

	retrieveStart := time.Now()
	vectors, err := r.deps.Embed.Embed(ctx, []string{req.Query})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(r.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query embedded", nil)

	k := topK(req.Config, 5)
	poolSize := rerankCandidates(req.Config, k)
	hits, err := r.deps.Vector.SimilaritySearch(ctx, vectors[0], poolSize, vectorFilter(req.DocumentIDs))
	if err != nil {
		kind := types.ErrorKindRetrievalFailed
		if ctx.Err() != nil {
			kind = types.ErrorKindTimeout
		}
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(r.Name(), kind, err, tr, nil), nil
	}
	candidates := retrievedFromHits(hits, "vector")
	tr.Log("retrieve_complete", "candidate pool assembled", map[string]any{
		"result_count": len(candidates),
		"top_scores":   topScores(candidates, 3),
	})

	scored := r.rerank(ctx, req.Query, candidates, req.Config)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].SubScores["vector_score"] > scored[j].SubScores["vector_score"]
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Method = "reranked"
		scored[i].Rank = i + 1
	}
	tr.Log("reranked", "candidates reordered", map[string]any{"kept": len(scored)})
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, scored)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(scored),
		"total_context_length": len(prompt),
	})

	tr.Log("generate_llm_call", "calling LLM", nil)
	answer, err := r.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the question using only the provided context. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(r.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    r.Name(),
		Answer:           answer,
		RetrievedChunks:  scored,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}

// rerank scores each candidate 0-10 via a single point-wise LLM call per
// candidate. A failing call leaves that candidate's original vector score
// (normalized into [0,10]) as its fallback, so a partial LLM outage still
// yields a usable ordering rather than an error.
func (r *Reranker) rerank(ctx context.Context, query string, candidates []types.RetrievedChunk, cfg Config) []types.RetrievedChunk {
	maxVec, minVec := normalizationBounds(candidates)
	out := make([]types.RetrievedChunk, len(candidates))
	copy(out, candidates)

	for i, c := range out {
		fallback := normalize(c.Score, minVec, maxVec) * 10
		out[i].SubScores = map[string]float64{"vector_score": c.Score}
		prompt := fmt.Sprintf(
			"On a scale of 0 to 10, how relevant is this passage to the question? Respond with only the number.\n\nQuestion: %s\n\nPassage: %s",
			query, c.Text,
		)
		resp, err := r.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			User:        prompt,
			Temperature: 0,
			MaxTokens:   8,
			Timeout:     timeoutFor(cfg),
		})
		if err != nil {
			out[i].Score = fallback
			continue
		}
		score, ok := parseScore(resp)
		if !ok {
			out[i].Score = fallback
			continue
		}
		out[i].Score = score
	}
	return out
}

// rerankCandidates resolves rag_config's rerank_candidates override, else
// 4*topK floored at 20.
func rerankCandidates(cfg Config, k int) int {
	if cfg.Extra != nil {
		if n, ok := cfg.Extra["rerank_candidates"].(int); ok && n > 0 {
			return n
		}
	}
	n := k * 4
	if n < 20 {
		n = 20
	}
	return n
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	var numeric strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			numeric.WriteRune(r)
		} else if numeric.Len() > 0 {
			break
		}
	}
	if numeric.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(numeric.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func normalizationBounds(chunks []types.RetrievedChunk) (max, min float64) {
	if len(chunks) == 0 {
		return 1, 0
	}
	max, min = chunks[0].Score, chunks[0].Score
	for _, c := range chunks {
		if c.Score > max {
			max = c.Score
		}
		if c.Score < min {
			min = c.Score
		}
	}
	return max, min
}

func normalize(v, min, max float64) float64 {
	if max == min {
		return 0.5
	}
	return (v - min) / (max - min)
}
