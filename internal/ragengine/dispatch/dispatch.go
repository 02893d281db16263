// Package dispatch implements ragarena's Fan-out Dispatcher: it runs a set
// of named techniques concurrently, bounded by a semaphore, and returns
// their results in the same order the technique names were requested in,
// regardless of completion order.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"ragarena/internal/ragengine/obs"
	"ragarena/internal/ragengine/technique"
	"ragarena/internal/ragengine/trace"
	"ragarena/internal/ragengine/types"
)

// Request is one fan-out run: a query against a set of named techniques.
type Request struct {
	Query          string
	TechniqueNames []string
	DocumentIDs    []string
	Config         technique.Config
	PerTechniqueTimeout time.Duration
}

// Dispatcher runs technique fan-outs against a shared registry and
// dependency bundle, bounding how many techniques execute concurrently.
type Dispatcher struct {
	registry       *technique.Registry
	deps           technique.Deps
	maxConcurrency int64
	metrics        obs.Metrics
}

// New builds a Dispatcher. maxConcurrency must be at least 1.
func New(registry *technique.Registry, deps technique.Deps, maxConcurrency int, metrics obs.Metrics) *Dispatcher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if metrics == nil {
		metrics = obs.NewMockMetrics()
	}
	return &Dispatcher{
		registry:       registry,
		deps:           deps,
		maxConcurrency: int64(maxConcurrency),
		metrics:        metrics,
	}
}

// Run executes every requested technique, bounded by the dispatcher's
// concurrency limit, and returns results in req.TechniqueNames order. The
// slice always has the same length as req.TechniqueNames: a technique that
// faults is represented by a TechniqueResult carrying an ErrorKind, never
// by a missing slot or a returned error.
func (d *Dispatcher) Run(ctx context.Context, req Request) ([]types.TechniqueResult, error) {
	results := make([]types.TechniqueResult, len(req.TechniqueNames))
	sem := semaphore.NewWeighted(d.maxConcurrency)
	pending := len(req.TechniqueNames)
	if pending == 0 {
		return results, nil
	}
	resultCh := make(chan indexedResult, pending)

	for i, name := range req.TechniqueNames {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled while waiting for a slot: every remaining
			// technique is recorded as canceled rather than silently
			// dropped.
			for j := i; j < len(req.TechniqueNames); j++ {
				results[j] = types.TechniqueResult{
					TechniqueName: req.TechniqueNames[j],
					ErrorKind:     types.ErrorKindCanceled,
					ErrorMessage:  err.Error(),
				}
			}
			return results, nil
		}
		go d.runOne(ctx, i, name, req, sem, resultCh)
	}

	for range req.TechniqueNames {
		r := <-resultCh
		results[r.index] = r.result
	}
	return results, nil
}

type indexedResult struct {
	index  int
	result types.TechniqueResult
}

func (d *Dispatcher) runOne(ctx context.Context, idx int, name string, req Request, sem *semaphore.Weighted, out chan<- indexedResult) {
	defer sem.Release(1)
	start := time.Now()

	result := func() (result types.TechniqueResult) {
		defer func() {
			if r := recover(); r != nil {
				result = types.TechniqueResult{
					TechniqueName: name,
					ErrorKind:     types.ErrorKindInternalError,
					ErrorMessage:  fmt.Sprintf("panic: %v", r),
				}
			}
		}()

		t, err := d.registry.Construct(name, d.deps)
		if err != nil {
			if _, ok := err.(technique.ErrUnknownTechnique); ok {
				return types.TechniqueResult{TechniqueName: name, ErrorKind: types.ErrorKindUnknownTechnique, ErrorMessage: err.Error()}
			}
			return types.TechniqueResult{TechniqueName: name, ErrorKind: types.ErrorKindInternalError, ErrorMessage: err.Error()}
		}

		tctx := ctx
		var cancel context.CancelFunc
		if req.PerTechniqueTimeout > 0 {
			tctx, cancel = context.WithTimeout(ctx, req.PerTechniqueTimeout)
			defer cancel()
		}

		res, err := t.Answer(tctx, technique.AnswerRequest{
			Query:       req.Query,
			DocumentIDs: req.DocumentIDs,
			Config:      req.Config,
			Recorder:    trace.New(),
		})
		if err != nil {
			return types.TechniqueResult{TechniqueName: name, ErrorKind: types.ErrorKindInternalError, ErrorMessage: err.Error()}
		}
		if res.TechniqueName == "" {
			res.TechniqueName = name
		}
		if tctx.Err() == context.DeadlineExceeded && res.ErrorKind == types.ErrorKindNone && res.Answer == "" {
			res.ErrorKind = types.ErrorKindTimeout
		}
		return res
	}()

	d.metrics.ObserveHistogram("technique_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"technique": name})
	if result.ErrorKind != types.ErrorKindNone {
		d.metrics.IncCounter("technique_errors_total", map[string]string{"technique": name, "error_kind": string(result.ErrorKind)})
	}

	out <- indexedResult{index: idx, result: result}
}
