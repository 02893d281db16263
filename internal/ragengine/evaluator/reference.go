package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// ReferenceMetric scores a QARecord against reference-style metrics
// (faithfulness and answer_relevancy are mandatory; context_precision and
// context_recall are computed whenever the record has retrieved chunks,
// judged against the question only — no reference answer is consulted).
// Unlike Dimensional, every call to Evaluate is funneled through a pool of
// isolated worker goroutines sized to the configured concurrency: the
// underlying scoring routines are not safe to invoke from more than one
// goroutine at a time (the reference metric's own internal
// caching/rate-limiting state is not synchronized), so each worker is the
// Go analogue of a private execution context with its own scheduler,
// and the pool is the concurrency-bounded generalization of running a
// single one.
type ReferenceMetric struct {
	llm   llmclient.Client
	embed embedclient.Client
	jobs  chan referenceJob
	done  chan struct{}
}

type referenceJob struct {
	ctx    context.Context
	record types.QARecord
	result chan<- referenceJobResult
}

type referenceJobResult struct {
	score types.EvaluationScore
}

const referenceMetricTimeout = 300 * time.Second

// NewReferenceMetric starts concurrency isolated workers, each pulling
// from the same job queue and therefore each serializing its own share of
// the work, and returns a ReferenceMetric bound to the pool. The workers
// run for the lifetime of the process (or until Close is called) and are
// reused across every call to Evaluate, exactly as the isolation
// requirement demands. concurrency below 1 is treated as 1.
func NewReferenceMetric(llm llmclient.Client, embed embedclient.Client, concurrency int) *ReferenceMetric {
	if concurrency < 1 {
		concurrency = 1
	}
	r := &ReferenceMetric{
		llm:   llm,
		embed: embed,
		jobs:  make(chan referenceJob, 64),
		done:  make(chan struct{}),
	}
	for i := 0; i < concurrency; i++ {
		go r.worker()
	}
	return r
}

func (r *ReferenceMetric) Name() string { return "reference_metric" }

// Evaluate submits record to the worker pool and blocks for its result,
// or until ctx is done.
func (r *ReferenceMetric) Evaluate(ctx context.Context, record types.QARecord) (types.EvaluationScore, error) {
	resultCh := make(chan referenceJobResult, 1)
	job := referenceJob{ctx: ctx, record: record, result: resultCh}

	select {
	case r.jobs <- job:
	case <-ctx.Done():
		return types.EvaluationScore{QARecordID: record.ID, ErrorKind: types.ErrorKindTimeout, ErrorMessage: ctx.Err().Error()}, nil
	}

	select {
	case res := <-resultCh:
		return res.score, nil
	case <-ctx.Done():
		return types.EvaluationScore{QARecordID: record.ID, ErrorKind: types.ErrorKindTimeout, ErrorMessage: ctx.Err().Error()}, nil
	}
}

// Close stops every worker in the pool. No further Evaluate calls should be
// made once Close returns.
func (r *ReferenceMetric) Close() {
	close(r.done)
}

func (r *ReferenceMetric) worker() {
	for {
		select {
		case job := <-r.jobs:
			job.result <- referenceJobResult{score: r.compute(job.ctx, job.record)}
		case <-r.done:
			return
		}
	}
}

// compute runs only on the pool's worker goroutines, one job per worker at
// a time.
func (r *ReferenceMetric) compute(ctx context.Context, record types.QARecord) types.EvaluationScore {
	cctx, cancel := context.WithTimeout(ctx, referenceMetricTimeout)
	defer cancel()

	referenceScores := map[string]any{}

	// Faithfulness is skipped on an empty retrieved-chunk set: there is no
	// context to be faithful to, and scoring against a blank context
	// produces a misleading number rather than an honest absence.
	if len(record.RetrievedChunks) > 0 {
		faithfulness, err := r.faithfulness(cctx, record)
		if err != nil {
			return types.EvaluationScore{QARecordID: record.ID, ErrorKind: classifyLLMErr(cctx, err), ErrorMessage: err.Error()}
		}
		referenceScores["faithfulness"] = faithfulness
	}

	relevancy, err := r.answerRelevancy(cctx, record)
	if err != nil {
		return types.EvaluationScore{QARecordID: record.ID, ErrorKind: classifyLLMErr(cctx, err), ErrorMessage: err.Error()}
	}
	referenceScores["answer_relevancy"] = relevancy

	if len(record.RetrievedChunks) > 0 {
		if precision, err := r.contextPrecision(cctx, record); err == nil {
			referenceScores["context_precision"] = precision
		}
		if recall, err := r.contextRecall(cctx, record); err == nil {
			referenceScores["context_recall"] = recall
		}
	}

	return types.EvaluationScore{QARecordID: record.ID, Metadata: map[string]any{"reference_scores": referenceScores}}
}

func (r *ReferenceMetric) faithfulness(ctx context.Context, record types.QARecord) (float64, error) {
	var sb strings.Builder
	for _, c := range record.RetrievedChunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	resp, err := r.llm.Complete(ctx, llmclient.CompletionRequest{
		System:      "Score from 0 to 1 how well every claim in the answer is supported by the context. Respond with only the number.",
		User:        fmt.Sprintf("Context:\n%s\nAnswer: %s", sb.String(), record.Answer),
		Temperature: 0,
		MaxTokens:   8,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return 0, err
	}
	v, ok := parseLenientScore(resp)
	if !ok {
		return 0, fmt.Errorf("reference_metric: could not parse faithfulness score")
	}
	return clamp01(v), nil
}

const answerRelevancyBackQuestions = 3

// answerRelevancy generates N "back-questions" the answer would plausibly
// be a response to, embeds them alongside the original query, and returns
// the mean cosine similarity between the query embedding and each
// back-question embedding — the embedding-based metric the spec
// prescribes, not an LLM-judged 0-1 score.
func (r *ReferenceMetric) answerRelevancy(ctx context.Context, record types.QARecord) (float64, error) {
	resp, err := r.llm.Complete(ctx, llmclient.CompletionRequest{
		System: fmt.Sprintf(
			"Given the answer below, write exactly %d plausible questions it could be answering. Respond with one question per line, nothing else.",
			answerRelevancyBackQuestions,
		),
		User:        record.Answer,
		Temperature: 0.3,
		MaxTokens:   256,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return 0, err
	}
	backQuestions := splitLines(resp)
	if len(backQuestions) == 0 {
		return 0, fmt.Errorf("reference_metric: no back-questions generated")
	}

	vectors, err := r.embed.Embed(ctx, append([]string{record.Query}, backQuestions...))
	if err != nil {
		return 0, err
	}
	queryVec := vectors[0]
	var sum float64
	for _, v := range vectors[1:] {
		sum += cosineSimilarity(queryVec, v)
	}
	return clamp01(sum / float64(len(vectors)-1)), nil
}

func cosineSimilarity(a, b []float32) float64 {
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
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (r *ReferenceMetric) contextPrecision(ctx context.Context, record types.QARecord) (float64, error) {
	var sb strings.Builder
	for _, c := range record.RetrievedChunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	resp, err := r.llm.Complete(ctx, llmclient.CompletionRequest{
		System:      "Score from 0 to 1 what fraction of the retrieved context is actually relevant to the question. Respond with only the number.",
		User:        fmt.Sprintf("Question: %s\nContext:\n%s", record.Query, sb.String()),
		Temperature: 0,
		MaxTokens:   8,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return 0, err
	}
	v, ok := parseLenientScore(resp)
	if !ok {
		return 0, fmt.Errorf("reference_metric: could not parse context_precision score")
	}
	return clamp01(v), nil
}

func (r *ReferenceMetric) contextRecall(ctx context.Context, record types.QARecord) (float64, error) {
	var sb strings.Builder
	for _, c := range record.RetrievedChunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	resp, err := r.llm.Complete(ctx, llmclient.CompletionRequest{
		System:      "Score from 0 to 1 how completely the retrieved context covers what would be needed to fully answer the question. Respond with only the number.",
		User:        fmt.Sprintf("Question: %s\nContext:\n%s", record.Query, sb.String()),
		Temperature: 0,
		MaxTokens:   8,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return 0, err
	}
	v, ok := parseLenientScore(resp)
	if !ok {
		return 0, fmt.Errorf("reference_metric: could not parse context_recall score")
	}
	return clamp01(v), nil
}

func clamp01(v float64) float64 {
	if v > 1 {
		if v <= 10 {
			return v / 10
		}
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
