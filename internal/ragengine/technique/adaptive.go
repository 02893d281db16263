package technique

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// Adaptive classifies the query into one of four fixed categories and
// dispatches to the strategy prescribed for each:
//   - factual    -> baseline, after rewriting the query for clearer retrieval
//   - analytical -> query_transform in decompose mode, forced to exactly 3 sub-questions
//   - opinion    -> retrieval with a diversity bias across candidate chunks
//   - contextual -> baseline, unmodified
type Adaptive struct {
	deps     Deps
	registry *Registry
}

// NewAdaptive constructs the adaptive technique. It looks up its
// sub-techniques from registry at Answer time rather than holding direct
// references, so it always dispatches to whatever is currently registered.
func NewAdaptive(deps Deps, registry *Registry) *Adaptive {
	return &Adaptive{deps: deps, registry: registry}
}

func (a *Adaptive) Name() string { return "adaptive" }

var adaptiveCategories = []string{"factual", "analytical", "opinion", "contextual"}

const diversityThreshold = 0.15

func (a *Adaptive) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "adaptive classification starting", nil)

	classifyStart := time.Now()
	category, err := a.classify(ctx, req)
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(a.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query classified", map[string]any{"category": category})
	classifyTime := time.Since(classifyStart)

	var result types.TechniqueResult
	switch category {
	case "factual":
		result, err = a.runFactual(ctx, req)
	case "analytical":
		result, err = a.runAnalytical(ctx, req)
	case "opinion":
		result, err = a.runOpinion(ctx, req)
	default: // contextual
		result, err = a.runSub(ctx, "baseline", req, req.Config)
	}
	if err != nil {
		return types.TechniqueResult{}, err
	}

	result.TechniqueName = a.Name()
	result.Trace = tr.Events()
	result.RetrievalTimeMS += classifyTime.Milliseconds()
	result.LatencyMS = time.Since(start).Milliseconds()
	return result, nil
}

func (a *Adaptive) classify(ctx context.Context, req AnswerRequest) (string, error) {
	resp, err := a.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System: "Classify the question into exactly one category: factual, analytical, opinion, or contextual. " +
			"factual = a specific fact with a short direct answer. analytical = requires breaking the question into parts and reasoning. " +
			"opinion = asks for a subjective judgement or recommendation. contextual = depends on surrounding conversational context. " +
			"Respond with only the category name.",
		User:        req.Query,
		Temperature: 0,
		MaxTokens:   8,
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		return "", err
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	for _, c := range adaptiveCategories {
		if strings.Contains(resp, c) {
			return c, nil
		}
	}
	return "contextual", nil
}

// runFactual rewrites the query for clearer retrieval, then answers with
// baseline against the rewritten query.
func (a *Adaptive) runFactual(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	tr := req.Recorder
	rewritten, err := a.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Rewrite the question to be clearer and more specific for document retrieval, preserving its meaning. Respond with only the rewritten question.",
		User:        req.Query,
		Temperature: 0,
		MaxTokens:   128,
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult("baseline", classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query rewritten for factual retrieval", map[string]any{"rewritten": rewritten})

	subReq := req
	subReq.Query = strings.TrimSpace(rewritten)
	return a.runSub(ctx, "baseline", subReq, req.Config)
}

// runAnalytical decomposes the query into exactly 3 sub-questions via
// query_transform.
func (a *Adaptive) runAnalytical(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	cfg := req.Config
	cfg.Extra = mergeExtra(cfg.Extra, "mode", "decompose")
	cfg.Extra = mergeExtra(cfg.Extra, "n", 3)
	return a.runSub(ctx, "query_transform", req, cfg)
}

// runOpinion retrieves a wider candidate pool and greedily keeps only
// chunks whose embedding is sufficiently different from every chunk
// already kept, biasing the final context toward diverse viewpoints.
func (a *Adaptive) runOpinion(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	tr := req.Recorder
	retrieveStart := time.Now()
	vectors, err := a.deps.Embed.Embed(ctx, []string{req.Query})
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult("adaptive_opinion", types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "query embedded", nil)

	k := topK(req.Config, 5)
	poolSize := k * 4
	if poolSize < 20 {
		poolSize = 20
	}
	hits, err := a.deps.Vector.SimilaritySearch(ctx, vectors[0], poolSize, vectorFilter(req.DocumentIDs))
	if err != nil {
		kind := types.ErrorKindRetrievalFailed
		if ctx.Err() != nil {
			kind = types.ErrorKindTimeout
		}
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult("adaptive_opinion", kind, err, tr, nil), nil
	}
	candidates := retrievedFromHits(hits, "vector")

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	candidateVectors, err := a.deps.Embed.Embed(ctx, texts)
	if err != nil {
		tr.Log("retrieve_complete_error", err.Error(), nil)
		return errorResult("adaptive_opinion", types.ErrorKindRetrievalFailed, err, tr, nil), nil
	}

	selected := diverseSelect(candidates, candidateVectors, k, diversityThreshold)
	tr.Log("retrieve_complete", "greedy diversity selection applied", map[string]any{
		"result_count": len(selected),
		"top_scores":   topScores(selected, 3),
		"threshold":    diversityThreshold,
	})
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, selected)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(selected),
		"total_context_length": len(prompt),
	})

	tr.Log("generate_llm_call", "calling LLM", nil)
	answer, err := a.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Answer the question using only the provided context, presenting the range of perspectives it contains. If the context is insufficient, say so.",
		User:        prompt,
		Temperature: temperature(req.Config, 0.0),
		MaxTokens:   maxTokens(req.Config, 512),
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult("adaptive_opinion", classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "answer produced", map[string]any{
		"answer_length":  len(answer),
		"answer_preview": preview(answer, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		Answer:           answer,
		RetrievedChunks:  selected,
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
	}, nil
}

// diverseSelect greedily keeps candidates whose cosine distance to every
// already-selected candidate exceeds threshold, in descending score order,
// until k are kept or candidates are exhausted.
func diverseSelect(candidates []types.RetrievedChunk, vectors [][]float32, k int, threshold float64) []types.RetrievedChunk {
	if k <= 0 {
		return []types.RetrievedChunk{}
	}
	var selected []types.RetrievedChunk
	var selectedVecs [][]float32
	for i, c := range candidates {
		if len(selected) >= k {
			break
		}
		if len(selected) == 0 {
			selected = append(selected, c)
			selectedVecs = append(selectedVecs, vectors[i])
			continue
		}
		farEnough := true
		for _, sv := range selectedVecs {
			if cosineDistance(vectors[i], sv) <= threshold {
				farEnough = false
				break
			}
		}
		if farEnough {
			selected = append(selected, c)
			selectedVecs = append(selectedVecs, vectors[i])
		}
	}
	for i := range selected {
		selected[i].Rank = i + 1
	}
	return selected
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - similarity
}

// runSub constructs name from the registry and runs it with cfg, sharing
// req's trace recorder so the adaptive run's trace includes every step
// the sub-technique logged.
func (a *Adaptive) runSub(ctx context.Context, name string, req AnswerRequest, cfg Config) (types.TechniqueResult, error) {
	sub, err := a.registry.Construct(name, a.deps)
	if err != nil {
		// A routing table pointing at an unregistered technique is an
		// infrastructure fault, not a domain outcome.
		return types.TechniqueResult{}, fmt.Errorf("adaptive: route to %q: %w", name, err)
	}
	subReq := AnswerRequest{
		Query:       req.Query,
		DocumentIDs: req.DocumentIDs,
		Config:      cfg,
		Recorder:    req.Recorder,
	}
	return sub.Answer(ctx, subReq)
}

func mergeExtra(extra map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out[key] = value
	return out
}
