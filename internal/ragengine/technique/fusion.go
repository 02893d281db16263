package technique

import (
	"context"
	"sort"
	"time"

	"ragarena/internal/ragengine/lexical"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// Fusion builds an ephemeral lexical index over the vector candidate pool,
// runs both a vector and a BM25 lexical search, min-max normalizes each
// side's scores into [0,1], and combines them with configurable weights
// (default 0.5/0.5). This is deliberately not reciprocal-rank fusion: the
// weighted min-max blend lets w_vec/w_lex bias the result without needing
// to retune a rank-constant.
type Fusion struct {
	deps Deps
}

func NewFusion(deps Deps) *Fusion { return &Fusion{deps: deps} }

func (f *Fusion) Name() string { return "fusion" }

func (f *Fusion) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "fusion retrieval starting", nil)

	retrieveStart := time.Now()
	vectors, err := f.deps.Embed.Embed(ctx, []string{req.Query})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(f.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query embedded", nil)

	k := topK(req.Config, 5)
	poolSize := fusionPoolSize(k)
	vecHits, err := f.deps.Vector.SimilaritySearch(ctx, vectors[0], poolSize, vectorFilter(req.DocumentIDs))
	if err != nil {
		kind := types.ErrorKindRetrievalFailed
		if ctx.Err() != nil {
			kind = types.ErrorKindTimeout
		}
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(f.Name(), kind, err, tr, nil), nil
	}
	vecCandidates := retrievedFromHits(vecHits, "vector")

	chunks := make([]types.Chunk, len(vecCandidates))
	for i, c := range vecCandidates {
		chunks[i] = c.Chunk
	}
	lex, err := lexical.Build(ctx, chunks)
	if err != nil {
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(f.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	defer lex.Close()

	lexHits, err := lex.Search(ctx, req.Query, poolSize)
	if err != nil {
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult(f.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}

	fused := fuseMinMax(vecCandidates, lexHits, fusionWeights(req.Config))
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > k {
		fused = fused[:k]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}
	tr.Log("retrieve_complete", "vector and lexical scores combined", map[string]any{
		"result_count": len(fused),
		"top_scores":   topScores(fused, 3),
	})
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, fused)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(fused),
		"total_context_length": len(prompt),
	})

	tr.Log("generate_llm_call", "calling LLM", nil)
	answer, err := f.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the question using only the provided context. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(f.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    f.Name(),
		Answer:           answer,
		RetrievedChunks:  fused,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}

// fusionPoolSize is the wider candidate pool both the vector and lexical
// legs search over before fusing: max(top_k, 10).
func fusionPoolSize(k int) int {
	if k < 10 {
		return 10
	}
	return k
}

func fusionWeights(cfg Config) (wVec, wLex float64) {
	wVec, wLex = cfg.WeightVec, cfg.WeightLex
	if wVec == 0 && wLex == 0 {
		return 0.5, 0.5
	}
	return wVec, wLex
}

// fuseMinMax combines vector candidates and lexical hits (over the same
// candidate set) into one score per chunk ID using min-max normalized
// scores on each side.
func fuseMinMax(vec []types.RetrievedChunk, lex []lexical.Hit, wVec, wLex float64) []types.RetrievedChunk {
	vecMax, vecMin := scoreBounds(vec)
	lexMax, lexMin := lexBounds(lex)

	byID := make(map[string]*types.RetrievedChunk, len(vec))
	order := make([]string, 0, len(vec))
	for _, c := range vec {
		cp := c
		normVec := normalize(c.Score, vecMin, vecMax)
		cp.Score = normVec * wVec
		cp.Method = "fused"
		cp.SubScores = map[string]float64{"vector_score": normVec, "lexical_score": 0}
		byID[c.ID] = &cp
		order = append(order, c.ID)
	}
	for _, h := range lex {
		normLex := normalize(h.Score, lexMin, lexMax)
		norm := normLex * wLex
		if existing, ok := byID[h.ChunkID]; ok {
			existing.Score += norm
			existing.SubScores["lexical_score"] = normLex
		}
		// A lexical-only hit (not present in the vector pool) cannot be
		// reconstructed into a full RetrievedChunk without its text/
		// metadata, so fusion only re-scores chunks already in the
		// vector candidate pool. This matches the technique's contract
		// of building the lexical index over that same pool.
	}

	out := make([]types.RetrievedChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func scoreBounds(chunks []types.RetrievedChunk) (max, min float64) {
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

func lexBounds(hits []lexical.Hit) (max, min float64) {
	if len(hits) == 0 {
		return 1, 0
	}
	max, min = hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
		if h.Score < min {
			min = h.Score
		}
	}
	return max, min
}
