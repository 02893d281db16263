package technique

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// SelfReflective implements a three-stage self-reflective retrieval loop:
//  1. retrieval-decision: ask the model whether retrieval is needed at all
//     (some queries are answerable from general knowledge alone).
//  2. relevance-filter: retrieve top_k candidates, label each fully_relevant,
//     partially_relevant, or not_relevant, and drop the not_relevant ones.
//  3. multi-candidate generation+scoring: generate M candidate answers at an
//     elevated temperature and have the model self-score each on support and
//     utility; keep the one with the highest composite score.
type SelfReflective struct {
	deps Deps
}

func NewSelfReflective(deps Deps) *SelfReflective { return &SelfReflective{deps: deps} }

func (s *SelfReflective) Name() string { return "self_reflective" }

const selfReflectiveCandidates = 2

func (s *SelfReflective) Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error) {
	start := time.Now()
	tr := req.Recorder
	tr.Log("init", "self-reflective loop starting", nil)

	retrieveStart := time.Now()
	needsRetrieval, err := s.decideRetrieval(ctx, req)
	if err != nil {
		tr.Log("retrieve_prepare_error", err.Error(), nil)
		return errorResult(s.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("retrieve_prepare", "decided whether retrieval is needed", map[string]any{"needed": needsRetrieval})

	var filtered []types.RetrievedChunk
	if needsRetrieval {
		vectors, err := s.deps.Embed.Embed(ctx, []string{req.Query})
		if err != nil {
			tr.Log("retrieve_complete_error", err.Error(), nil)
			return errorResult(s.Name(), types.ErrorKindRetrievalFailed, err, tr, nil), nil
		}
		k := topK(req.Config, 5)
		hits, err := s.deps.Vector.SimilaritySearch(ctx, vectors[0], k, vectorFilter(req.DocumentIDs))
		if err != nil {
			kind := types.ErrorKindRetrievalFailed
			if ctx.Err() != nil {
				kind = types.ErrorKindTimeout
			}
			tr.Log("retrieve_complete_error", err.Error(), nil)
			return errorResult(s.Name(), kind, err, tr, nil), nil
		}
		candidates := retrievedFromHits(hits, "vector")

		filtered, err = s.filterRelevant(ctx, req.Query, candidates, req.Config)
		if err != nil {
			tr.Log("retrieve_complete_error", err.Error(), nil)
			return errorResult(s.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
		}
		tr.Log("retrieve_complete", "relevance filter applied", map[string]any{
			"result_count": len(filtered),
			"top_scores":   topScores(filtered, 3),
		})
	} else {
		tr.Log("retrieve_complete", "retrieval skipped", map[string]any{"result_count": 0})
	}
	retrievalTime := time.Since(retrieveStart)

	generateStart := time.Now()
	prompt := buildContextPrompt(req.Query, filtered)
	tr.Log("generate_prepare_context", "context assembled", map[string]any{
		"doc_count":            len(filtered),
		"total_context_length": len(prompt),
	})

	best, bestScore, err := s.generateAndScore(ctx, req, filtered, tr)
	if err != nil {
		tr.Log("generate_complete_error", err.Error(), nil)
		return errorResult(s.Name(), classifyLLMErr(ctx, err), err, tr, nil), nil
	}
	tr.Log("generate_complete", "best candidate selected", map[string]any{
		"composite_score": bestScore,
		"answer_length":   len(best),
		"answer_preview":  preview(best, 150),
	})
	generationTime := time.Since(generateStart)

	return types.TechniqueResult{
		TechniqueName:    s.Name(),
		Answer:           best,
		RetrievedChunks:  filtered,
		Trace:            tr.Events(),
		RetrievalTimeMS:  retrievalTime.Milliseconds(),
		GenerationTimeMS: generationTime.Milliseconds(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}, nil
}

func (s *SelfReflective) decideRetrieval(ctx context.Context, req AnswerRequest) (bool, error) {
	resp, err := s.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Does answering this question require looking up specific documents, or can it be answered from general knowledge alone? Respond with only yes or no.",
		User:        req.Query,
		Temperature: 0,
		MaxTokens:   4,
		Timeout:     timeoutFor(req.Config),
	})
	if err != nil {
		return false, err
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	return !strings.HasPrefix(resp, "no"), nil
}

// filterRelevant labels each candidate fully_relevant, partially_relevant,
// or not_relevant with one LLM call and drops only the not_relevant ones.
func (s *SelfReflective) filterRelevant(ctx context.Context, query string, candidates []types.RetrievedChunk, cfg Config) ([]types.RetrievedChunk, error) {
	out := make([]types.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		resp, err := s.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			System:      "Label this passage's relevance to the question as exactly one of: fully_relevant, partially_relevant, not_relevant. Respond with only the label.",
			User:        "Question: " + query + "\n\nPassage: " + c.Text,
			Temperature: 0,
			MaxTokens:   8,
			Timeout:     timeoutFor(cfg),
		})
		if err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(resp), "not_relevant") {
			continue
		}
		out = append(out, c)
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// generateAndScore produces selfReflectiveCandidates candidate answers at
// temperature 0.7, scores each on support (fully/partially/none -> 3/1/0)
// and utility (1-5), and keeps the one with the highest composite score
// 5*support+utility. Ties are broken by the shorter answer. Losing
// candidates are logged to tr, never discarded silently.
func (s *SelfReflective) generateAndScore(ctx context.Context, req AnswerRequest, chunks []types.RetrievedChunk, tr interface {
	Log(step, message string, details map[string]any)
}) (string, int, error) {
	prompt := buildContextPrompt(req.Query, chunks)

	type candidate struct {
		answer string
		score  int
	}
	var candidates []candidate

	for i := 0; i < selfReflectiveCandidates; i++ {
		answer, err := s.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
			System:      "Answer the question using only the provided context. If the context is insufficient, say so.",
			User:        prompt,
			Temperature: 0.7,
			MaxTokens:   maxTokens(req.Config, 512),
			Timeout:     timeoutFor(req.Config),
		})
		if err != nil {
			if len(candidates) > 0 {
				break
			}
			return "", 0, err
		}
		candidates = append(candidates, candidate{answer: answer, score: s.scoreCandidate(ctx, req, answer)})
	}
	if len(candidates) == 0 {
		return "", 0, simpleError("self_reflective: no candidate answer produced")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && len(c.answer) < len(best.answer)) {
			if best.answer != c.answer {
				tr.Log("candidate_discarded", "losing candidate discarded", map[string]any{
					"score": best.score, "answer_length": len(best.answer),
				})
			}
			best = c
			continue
		}
		tr.Log("candidate_discarded", "losing candidate discarded", map[string]any{
			"score": c.score, "answer_length": len(c.answer),
		})
	}
	return best.answer, best.score, nil
}

// scoreCandidate asks for a support label and a 1-5 utility score, and
// returns the composite 5*support+utility. Any unparsable response scores
// that axis 0 rather than aborting the candidate.
func (s *SelfReflective) scoreCandidate(ctx context.Context, req AnswerRequest, answer string) int {
	supportResp, err := s.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "Is this answer supported by the given context? Respond with only one word: fully, partially, or none.",
		User:        "Question: " + req.Query + "\n\nAnswer: " + answer,
		Temperature: 0,
		MaxTokens:   4,
		Timeout:     timeoutFor(req.Config),
	})
	support := 0
	if err == nil {
		switch {
		case strings.Contains(strings.ToLower(supportResp), "fully"):
			support = 3
		case strings.Contains(strings.ToLower(supportResp), "partially"):
			support = 1
		}
	}

	utilityResp, err := s.deps.LLM.Complete(ctx, llmclient.CompletionRequest{
		System:      "On a scale of 1 to 5, how useful is this answer to someone asking the question? Respond with only the number.",
		User:        "Question: " + req.Query + "\n\nAnswer: " + answer,
		Temperature: 0,
		MaxTokens:   4,
		Timeout:     timeoutFor(req.Config),
	})
	utility := 0
	if err == nil {
		if v, perr := strconv.Atoi(strings.TrimSpace(utilityResp)); perr == nil {
			if v < 1 {
				v = 1
			} else if v > 5 {
				v = 5
			}
			utility = v
		}
	}

	return 5*support + utility
}

type simpleError string

func (e simpleError) Error() string { return string(e) }
