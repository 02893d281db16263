// Package technique implements ragarena's Technique Registry and the
// family of pluggable RAG techniques that answer a query against a shared
// set of collaborators (vector index, LLM client, embedding client).
package technique

import (
	"context"
	"fmt"
	"sync"

	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/index"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/trace"
	"ragarena/internal/ragengine/types"
)

// Deps bundles the read-mostly collaborators every technique is
// constructed with. None of them carry per-request state, so one Deps
// value is shared across an entire fan-out run.
type Deps struct {
	Vector index.VectorIndex
	LLM    llmclient.Client
	Embed  embedclient.Client
}

// Config is the per-technique tuning knobs taken from a request's
// rag_config mapping. Unknown keys are ignored by every technique.
type Config struct {
	TopK        int
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds
	WeightVec   float64
	WeightLex   float64
	Extra       map[string]any
}

// AnswerRequest is the input to Technique.Answer.
type AnswerRequest struct {
	Query       string
	DocumentIDs []string
	Config      Config
	Recorder    *trace.Recorder
}

// Technique is the C6 contract. A technique must never let a domain
// failure (retrieval, LLM, timeout) escape as a Go error: those are
// encoded in TechniqueResult.ErrorKind. Answer returning a non-nil error
// signals an infrastructure fault (e.g. a nil dependency), which the
// dispatcher maps to internal_error.
type Technique interface {
	Name() string
	Answer(ctx context.Context, req AnswerRequest) (types.TechniqueResult, error)
}

// Factory constructs a Technique from shared Deps.
type Factory func(deps Deps) (Technique, error)

// ErrUnknownTechnique is returned by Registry.Construct for an unregistered
// name.
type ErrUnknownTechnique struct{ Name string }

func (e ErrUnknownTechnique) Error() string {
	return fmt.Sprintf("technique: unknown technique %q", e.Name)
}

// Registry maps technique names to their Factory, mirroring the
// register/instantiate pattern used by this codebase's other pluggable
// subsystems (evaluators, prompt stores).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the Factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Available returns every registered technique name.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Construct builds the named Technique against deps, returning
// ErrUnknownTechnique if name was never registered.
func (r *Registry) Construct(name string, deps Deps) (Technique, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTechnique{Name: name}
	}
	return factory(deps)
}

// NewDefaultRegistry returns a Registry with all seven built-in technique
// families registered under their canonical names.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("baseline", func(d Deps) (Technique, error) { return NewBaseline(d), nil })
	reg.Register("reranker", func(d Deps) (Technique, error) { return NewReranker(d), nil })
	reg.Register("fusion", func(d Deps) (Technique, error) { return NewFusion(d), nil })
	reg.Register("hyde", func(d Deps) (Technique, error) { return NewHyDE(d), nil })
	reg.Register("query_transform", func(d Deps) (Technique, error) { return NewQueryTransform(d), nil })
	reg.Register("adaptive", func(d Deps) (Technique, error) { return NewAdaptive(d, reg), nil })
	reg.Register("self_reflective", func(d Deps) (Technique, error) { return NewSelfReflective(d), nil })
	return reg
}

// topK returns cfg.TopK, including an explicit 0 (spec invariant: top_k=0
// still runs generation with empty retrieved_chunks). Only a negative
// TopK is treated as unset and falls back to def.
func topK(cfg Config, def int) int {
	if cfg.TopK < 0 {
		return def
	}
	return cfg.TopK
}

func temperature(cfg Config, def float64) float64 {
	if cfg.Temperature != 0 {
		return cfg.Temperature
	}
	return def
}

func maxTokens(cfg Config, def int) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return def
}

func vectorFilter(documentIDs []string) index.Filter {
	if len(documentIDs) == 0 {
		return nil
	}
	return index.Filter{"document_id": documentIDs}
}

// topScores returns up to n scores from chunks, in the order given, for
// trace detail payloads (chunks are assumed pre-sorted by rank).
func topScores(chunks []types.RetrievedChunk, n int) []float64 {
	out := make([]float64, 0, n)
	for i, c := range chunks {
		if i >= n {
			break
		}
		out = append(out, c.Score)
	}
	return out
}

// preview truncates s to at most n runes for trace logging, so a trace
// event never embeds an entire generated answer.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func retrievedFromHits(hits []index.Hit, method string) []types.RetrievedChunk {
	out := make([]types.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = types.RetrievedChunk{
			Chunk:  h.Chunk,
			Score:  h.Score,
			Method: method,
			Rank:   i + 1,
		}
	}
	return out
}

func errorResult(name string, kind types.ErrorKind, err error, tr *trace.Recorder, startEvents []types.TraceEvent) types.TechniqueResult {
	res := types.TechniqueResult{
		TechniqueName: name,
		ErrorKind:     kind,
		Trace:         startEvents,
	}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	if tr != nil {
		res.Trace = tr.Events()
	}
	return res
}

func classifyLLMErr(ctx context.Context, err error) types.ErrorKind {
	if ctx.Err() != nil {
		return types.ErrorKindTimeout
	}
	if classified, ok := llmclient.AsError(err); ok && classified.Kind == llmclient.KindTimeout {
		return types.ErrorKindTimeout
	}
	return types.ErrorKindLLMFailed
}
