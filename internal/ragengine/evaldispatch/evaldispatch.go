// Package evaldispatch implements ragarena's Evaluation Dispatcher: it runs
// the dimensional and reference-metric evaluators over a batch of
// QARecords with bounded concurrency and per-record failure isolation, so
// one record's evaluator failure never blocks or discards another's
// successful score.
package evaldispatch

import (
	"context"

	"golang.org/x/sync/semaphore"

	"ragarena/internal/ragengine/obs"
	"ragarena/internal/ragengine/types"
)

// DimensionalEvaluator scores a QARecord on the five fixed LLM-judged
// dimensions.
type DimensionalEvaluator interface {
	Evaluate(ctx context.Context, record types.QARecord) (types.EvaluationScore, error)
}

// ReferenceEvaluator scores a QARecord against reference-style metrics,
// internally funneled through its own pool of isolated workers.
type ReferenceEvaluator interface {
	Evaluate(ctx context.Context, record types.QARecord) (types.EvaluationScore, error)
}

// Dispatcher runs both evaluator tracks over a batch of QARecords.
type Dispatcher struct {
	dimensional    DimensionalEvaluator
	reference      ReferenceEvaluator
	maxConcurrency int64
	metrics        obs.Metrics
}

// New builds a Dispatcher bounded to maxConcurrency concurrent records.
// The reference evaluator's own internal concurrency (its pool of
// isolated workers) is independent of this bound: many records may be in
// flight to the dimensional evaluator while reference jobs queue for
// whichever of the reference evaluator's workers is free.
func New(dimensional DimensionalEvaluator, reference ReferenceEvaluator, maxConcurrency int, metrics obs.Metrics) *Dispatcher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if metrics == nil {
		metrics = obs.NewMockMetrics()
	}
	return &Dispatcher{dimensional: dimensional, reference: reference, maxConcurrency: int64(maxConcurrency), metrics: metrics}
}

// Result pairs a QARecord's ID with its two evaluation scores. A nil field
// means that track's evaluator returned an error (or the record was never
// evaluated); a failure the evaluator reports through the score's
// ErrorKind leaves the field non-nil with that ErrorKind set.
type Result struct {
	QARecordID string
	Dimensional *types.EvaluationScore
	Reference   *types.EvaluationScore
}

// Run evaluates every record, merging each record's dimensional and
// reference scores into one Result per record. A failure on one track for
// one record does not affect any other track or any other record.
func (d *Dispatcher) Run(ctx context.Context, records []types.QARecord) ([]Result, error) {
	results := make([]Result, len(records))
	if len(records) == 0 {
		return results, nil
	}
	sem := semaphore.NewWeighted(d.maxConcurrency)
	type indexed struct {
		index  int
		result Result
	}
	out := make(chan indexed, len(records))

	for i, rec := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(records); j++ {
				results[j] = Result{QARecordID: records[j].ID}
			}
			return results, nil
		}
		go func(idx int, record types.QARecord) {
			defer sem.Release(1)
			out <- indexed{index: idx, result: d.evaluateOne(ctx, record)}
		}(i, rec)
	}

	for range records {
		r := <-out
		results[r.index] = r.result
	}
	return results, nil
}

func (d *Dispatcher) evaluateOne(ctx context.Context, record types.QARecord) Result {
	res := Result{QARecordID: record.ID}

	if dimScore, err := d.dimensional.Evaluate(ctx, record); err == nil {
		res.Dimensional = &dimScore
		d.metrics.IncCounter("eval_completed_total", map[string]string{"track": "dimensional"})
	} else {
		d.metrics.IncCounter("eval_failed_total", map[string]string{"track": "dimensional"})
	}

	if refScore, err := d.reference.Evaluate(ctx, record); err == nil {
		res.Reference = &refScore
		d.metrics.IncCounter("eval_completed_total", map[string]string{"track": "reference"})
	} else {
		d.metrics.IncCounter("eval_failed_total", map[string]string{"track": "reference"})
	}

	return res
}
