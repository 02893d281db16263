// Package evaluator implements ragarena's two evaluator tracks: an
// LLM-judged dimensional scorer and a reference-metric scorer running in
// an isolated worker pool.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/types"
)

// Dimension is one of the five fixed scoring axes the dimensional
// evaluator always reports, except faithfulness which is skipped when a
// QARecord has no retrieved chunks (there is nothing to be faithful to).
type Dimension string

const (
	DimensionRelevance   Dimension = "relevance"
	DimensionFaithfulness Dimension = "faithfulness"
	DimensionCoherence   Dimension = "coherence"
	DimensionFluency     Dimension = "fluency"
	DimensionConciseness Dimension = "conciseness"
)

var allDimensions = []Dimension{
	DimensionRelevance, DimensionFaithfulness, DimensionCoherence, DimensionFluency, DimensionConciseness,
}

// Dimensional scores a QARecord along the five fixed dimensions using
// point-wise LLM judgement, one call per dimension.
type Dimensional struct {
	llm llmclient.Client
}

// NewDimensional constructs a Dimensional evaluator over the given LLM
// client. The client carries no per-request state, so one instance is
// safe to share across concurrent evaluation workers.
func NewDimensional(llm llmclient.Client) *Dimensional {
	return &Dimensional{llm: llm}
}

func (d *Dimensional) Name() string { return "llm_dimensional" }

// Evaluate scores record along every dimension, skipping faithfulness when
// record has no retrieved chunks. A dimension whose LLM response can't be
// parsed, or whose LLM call fails, scores 0 for that dimension rather than
// aborting the whole evaluation — only a timeout (or a done ctx) aborts
// early with an ErrorKind set.
func (d *Dimensional) Evaluate(ctx context.Context, record types.QARecord) (types.EvaluationScore, error) {
	score := types.EvaluationScore{QARecordID: record.ID}
	dims := allDimensions
	if len(record.RetrievedChunks) == 0 {
		dims = []Dimension{DimensionRelevance, DimensionCoherence, DimensionFluency, DimensionConciseness}
	}

	var sum float64
	var present int
	for _, dim := range dims {
		val, err := d.scoreDimension(ctx, dim, record)
		if err != nil {
			if classified := classifyLLMErr(ctx, err); classified == types.ErrorKindTimeout {
				score.ErrorKind = classified
				score.ErrorMessage = err.Error()
				return score, nil
			}
			val = 0
		}
		assign(&score, dim, val)
		sum += val
		present++
	}
	if present > 0 {
		overall := sum / float64(present)
		score.Overall = &overall
	}
	return score, nil
}

func (d *Dimensional) scoreDimension(ctx context.Context, dim Dimension, record types.QARecord) (float64, error) {
	prompt := dimensionPrompt(dim, record)
	resp, err := d.llm.Complete(ctx, llmclient.CompletionRequest{
		System:      "You are a strict evaluator. Respond with only a single number from 0 to 10.",
		User:        prompt,
		Temperature: 0,
		MaxTokens:   8,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		return 0, err
	}
	val, ok := parseLenientScore(resp)
	if !ok {
		return 0, fmt.Errorf("evaluator: could not parse score from response %q", resp)
	}
	if val > 10 {
		val = 10
	}
	return val, nil
}

func dimensionPrompt(dim Dimension, record types.QARecord) string {
	contextText := "Context:\n"
	for _, c := range record.RetrievedChunks {
		contextText += c.Text + "\n"
	}
	switch dim {
	case DimensionRelevance:
		return fmt.Sprintf("%s\nQuestion: %s\nAnswer: %s\nHow relevant is the answer to the question?", contextText, record.Query, record.Answer)
	case DimensionFaithfulness:
		return fmt.Sprintf("%s\nAnswer: %s\nHow faithful is the answer to the given context (does it avoid unsupported claims)?", contextText, record.Answer)
	case DimensionCoherence:
		return fmt.Sprintf("Answer: %s\nHow logically coherent and well-structured is this answer?", record.Answer)
	case DimensionFluency:
		return fmt.Sprintf("Answer: %s\nHow fluent and grammatically correct is this answer?", record.Answer)
	case DimensionConciseness:
		return fmt.Sprintf("Question: %s\nAnswer: %s\nHow concise is the answer, without omitting necessary information?", record.Query, record.Answer)
	default:
		return record.Answer
	}
}

func assign(score *types.EvaluationScore, dim Dimension, val float64) {
	switch dim {
	case DimensionRelevance:
		score.Relevance = &val
	case DimensionFaithfulness:
		score.Faithfulness = &val
	case DimensionCoherence:
		score.Coherence = &val
	case DimensionFluency:
		score.Fluency = &val
	case DimensionConciseness:
		score.Conciseness = &val
	}
}

func parseLenientScore(s string) (float64, bool) {
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

func classifyLLMErr(ctx context.Context, err error) types.ErrorKind {
	if ctx.Err() != nil {
		return types.ErrorKindTimeout
	}
	if classified, ok := llmclient.AsError(err); ok && classified.Kind == llmclient.KindTimeout {
		return types.ErrorKindTimeout
	}
	return types.ErrorKindEvaluatorFailed
}
