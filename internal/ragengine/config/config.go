// Package config loads ragarena's process configuration from environment
// variables (with optional .env overlay), following the same
// load-then-apply-defaults shape as the wider configuration loader this
// project was trimmed from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// VectorBackend selects the C1 Vector Index Client implementation.
type VectorBackend string

const (
	VectorBackendMemory VectorBackend = "memory"
	VectorBackendQdrant VectorBackend = "qdrant"
)

// StoreBackend selects the C12 Persistence Layer implementation.
type StoreBackend string

const (
	StoreBackendMemory   StoreBackend = "memory"
	StoreBackendPostgres StoreBackend = "postgres"
)

// LLMProvider selects the C2 Language Model Client backend.
type LLMProvider string

const (
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderOpenAI    LLMProvider = "openai"
)

// EmbeddingProvider selects the C3 Embedding Client backend.
type EmbeddingProvider string

const (
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
	EmbeddingProviderHTTP   EmbeddingProvider = "http"
)

// VectorConfig configures the vector index client.
type VectorConfig struct {
	Backend    VectorBackend
	QdrantDSN  string
	Collection string
	Dimension  int
	Metric     string
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Backend     StoreBackend
	DatabaseURL string
}

// LLMConfig configures the language model client, including its retry
// policy (spec's timeout/rate_limited/upstream_error/permanent_error
// taxonomy is enforced in the llmclient package; these are just the knobs).
type LLMConfig struct {
	Provider       LLMProvider
	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIModel    string
	MaxRetries     int
	RequestTimeout time.Duration
}

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	Provider  EmbeddingProvider
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel     string
	LogPath      string
	OTelEndpoint string
}

// Config is the full process configuration for ragarena.
type Config struct {
	Vector          VectorConfig
	Store           StoreConfig
	LLM             LLMConfig
	Embedding       EmbeddingConfig
	Observability   ObservabilityConfig
	MaxConcurrency  int
	EvalConcurrency int
}

// Load reads a .env file (if present, values do not override already-set
// environment variables) and then builds a Config from the environment,
// applying defaults for anything unset.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Vector: VectorConfig{
			Backend:    VectorBackend(getenvDefault("RAGARENA_VECTOR_BACKEND", string(VectorBackendMemory))),
			QdrantDSN:  os.Getenv("RAGARENA_QDRANT_DSN"),
			Collection: getenvDefault("RAGARENA_QDRANT_COLLECTION", "ragarena_chunks"),
			Dimension:  getenvIntDefault("RAGARENA_VECTOR_DIM", 768),
			Metric:     getenvDefault("RAGARENA_VECTOR_METRIC", "cosine"),
		},
		Store: StoreConfig{
			Backend:     StoreBackend(getenvDefault("RAGARENA_STORE_BACKEND", string(StoreBackendMemory))),
			DatabaseURL: os.Getenv("RAGARENA_DATABASE_URL"),
		},
		LLM: LLMConfig{
			Provider:       LLMProvider(getenvDefault("RAGARENA_LLM_PROVIDER", string(LLMProviderAnthropic))),
			AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel: getenvDefault("ANTHROPIC_MODEL", "claude-3-7-sonnet-latest"),
			OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:    getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
			MaxRetries:     getenvIntDefault("RAGARENA_LLM_MAX_RETRIES", 3),
			RequestTimeout: getenvDurationDefault("RAGARENA_LLM_TIMEOUT", 30*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingProvider(getenvDefault("RAGARENA_EMBEDDING_PROVIDER", string(EmbeddingProviderOpenAI))),
			APIKey:    getenvDefault("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:     getenvDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:   os.Getenv("EMBEDDING_BASE_URL"),
			Dimension: getenvIntDefault("RAGARENA_VECTOR_DIM", 768),
			Timeout:   getenvDurationDefault("RAGARENA_EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:     getenvDefault("RAGARENA_LOG_LEVEL", "info"),
			LogPath:      os.Getenv("RAGARENA_LOG_PATH"),
			OTelEndpoint: os.Getenv("RAGARENA_OTEL_ENDPOINT"),
		},
		MaxConcurrency:  getenvIntDefault("RAGARENA_MAX_CONCURRENCY", 4),
		EvalConcurrency: getenvIntDefault("RAGARENA_EVAL_CONCURRENCY", 2),
	}

	if cfg.Vector.Backend == VectorBackendQdrant && strings.TrimSpace(cfg.Vector.QdrantDSN) == "" {
		return cfg, fmt.Errorf("config: RAGARENA_QDRANT_DSN required when RAGARENA_VECTOR_BACKEND=qdrant")
	}
	if cfg.Store.Backend == StoreBackendPostgres && strings.TrimSpace(cfg.Store.DatabaseURL) == "" {
		return cfg, fmt.Errorf("config: RAGARENA_DATABASE_URL required when RAGARENA_STORE_BACKEND=postgres")
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.EvalConcurrency < 1 {
		cfg.EvalConcurrency = 1
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
