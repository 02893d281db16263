// Command ragarena runs one fan-out of RAG techniques against a query and,
// optionally, evaluates the results, following this codebase's other
// cmd/ binaries in sticking to the plain flag package rather than a CLI
// framework.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ragarena/internal/ragengine/config"
	"ragarena/internal/ragengine/dispatch"
	"ragarena/internal/ragengine/embedclient"
	"ragarena/internal/ragengine/evaldispatch"
	"ragarena/internal/ragengine/evaluator"
	"ragarena/internal/ragengine/index"
	"ragarena/internal/ragengine/llmclient"
	"ragarena/internal/ragengine/obs"
	"ragarena/internal/ragengine/store"
	"ragarena/internal/ragengine/technique"
	"ragarena/internal/ragengine/types"
)

const (
	exitSuccess        = 0
	exitPartialFailure = 1
	exitRequestFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("ragarena", flag.ContinueOnError)
	query := fs.String("query", "", "query to run against the requested techniques")
	techniquesFlag := fs.String("techniques", "baseline", "comma-separated technique names")
	documentsFlag := fs.String("documents", "", "comma-separated document ids to scope retrieval to")
	topK := fs.Int("top-k", 5, "default retrieval top-k")
	sessionID := fs.String("session", "", "session id to record results under (generated if empty)")
	runEval := fs.Bool("eval", false, "run the evaluation dispatcher over the fan-out results")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitRequestFailure
	}

	if strings.TrimSpace(*query) == "" {
		fmt.Fprintln(stderr, "ragarena: -query is required")
		return exitRequestFailure
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "ragarena: config: %v\n", err)
		return exitRequestFailure
	}

	logger, err := obs.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "ragarena: logging: %v\n", err)
		return exitRequestFailure
	}
	metrics := obs.NewOtelMetrics()

	ctx := context.Background()

	vec, err := buildVectorIndex(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("vector_index_init_failed")
		return exitRequestFailure
	}
	defer vec.Close()

	llm, err := buildLLMClient(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("llm_client_init_failed")
		return exitRequestFailure
	}

	embed := buildEmbedClient(cfg)

	st, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("store_init_failed")
		return exitRequestFailure
	}
	defer st.Close()

	registry := technique.NewDefaultRegistry()
	deps := technique.Deps{Vector: vec, LLM: llm, Embed: embed}
	disp := dispatch.New(registry, deps, cfg.MaxConcurrency, metrics)

	techniqueNames := splitCSV(*techniquesFlag)
	if len(techniqueNames) == 0 {
		fmt.Fprintln(stderr, "ragarena: -techniques must name at least one technique")
		return exitRequestFailure
	}
	documentIDs := splitCSV(*documentsFlag)

	session := types.Session{
		ID:             nonEmpty(*sessionID, uuid.NewString()),
		Query:          *query,
		TechniqueNames: techniqueNames,
		DocumentIDs:    documentIDs,
		CreatedAt:      time.Now().UTC(),
	}

	results, err := disp.Run(ctx, dispatch.Request{
		Query:          *query,
		TechniqueNames: techniqueNames,
		DocumentIDs:    documentIDs,
		Config:         technique.Config{TopK: *topK},
	})
	if err != nil {
		logger.Error().Err(err).Msg("dispatch_failed")
		return exitRequestFailure
	}

	records := make([]types.QARecord, len(results))
	anyFailed := false
	for i, r := range results {
		if r.ErrorKind != types.ErrorKindNone {
			anyFailed = true
		}
		records[i] = types.QARecord{
			ID:              uuid.NewString(),
			SessionID:       session.ID,
			Query:           *query,
			TechniqueName:   r.TechniqueName,
			Answer:          r.Answer,
			RetrievedChunks: r.RetrievedChunks,
			Trace:           r.Trace,
			ErrorKind:        r.ErrorKind,
			ErrorMessage:     r.ErrorMessage,
			RetrievalTimeMS:  r.RetrievalTimeMS,
			GenerationTimeMS: r.GenerationTimeMS,
			LatencyMS:        r.LatencyMS,
			CreatedAt:        time.Now().UTC(),
		}
	}

	if err := st.WriteSession(ctx, session, records); err != nil {
		logger.Error().Err(err).Msg("persist_session_failed")
		return exitRequestFailure
	}

	summary := map[string]any{
		"session_id": session.ID,
		"results":    results,
	}

	if *runEval {
		dimensional := evaluator.NewDimensional(llm)
		reference := evaluator.NewReferenceMetric(llm, embed, cfg.EvalConcurrency)
		evalDisp := evaldispatch.New(dimensional, reference, cfg.EvalConcurrency, metrics)
		evalResults, err := evalDisp.Run(ctx, records)
		if err != nil {
			logger.Error().Err(err).Msg("evaluation_dispatch_failed")
			return exitRequestFailure
		}
		var scores []types.EvaluationScore
		for _, er := range evalResults {
			if er.Dimensional != nil {
				scores = append(scores, *er.Dimensional)
			}
			if er.Reference != nil {
				scores = append(scores, *er.Reference)
			}
		}
		if err := st.WriteEvaluations(ctx, scores); err != nil {
			logger.Error().Err(err).Msg("persist_evaluations_failed")
			return exitRequestFailure
		}
		summary["evaluations"] = evalResults
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error().Err(err).Msg("encode_summary_failed")
		return exitRequestFailure
	}

	if anyFailed {
		return exitPartialFailure
	}
	return exitSuccess
}

func buildVectorIndex(cfg config.Config) (index.VectorIndex, error) {
	switch cfg.Vector.Backend {
	case config.VectorBackendQdrant:
		return index.NewQdrantIndex(cfg.Vector.QdrantDSN, cfg.Vector.Collection, cfg.Vector.Dimension, cfg.Vector.Metric)
	default:
		return index.NewMemoryIndex(cfg.Vector.Dimension), nil
	}
}

func buildLLMClient(cfg config.Config, logger zerolog.Logger) (llmclient.Client, error) {
	var inner llmclient.Client
	switch cfg.LLM.Provider {
	case config.LLMProviderOpenAI:
		inner = llmclient.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIModel)
	default:
		inner = llmclient.NewAnthropicClient(cfg.LLM.AnthropicKey, cfg.LLM.AnthropicModel)
	}
	return llmclient.NewRetrying(inner, cfg.LLM.MaxRetries, logger), nil
}

func buildEmbedClient(cfg config.Config) embedclient.Client {
	if strings.TrimSpace(cfg.Embedding.BaseURL) == "" {
		return embedclient.NewDeterministic(cfg.Embedding.Dimension, true, 0)
	}
	return embedclient.NewHTTPClient(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.APIKey, cfg.Embedding.Dimension, cfg.Embedding.Timeout)
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return store.NewMemory(), nil
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonEmpty(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
