package config

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration shared by every service.
type Config struct {
	// Server
	Port       int    `env:"PORT" envDefault:"8080"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8090"` // workers expose /healthz and /metrics here
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"`
	DBURL         string `env:"DB_URL"`
	EmbeddingDim  int    `env:"EMBEDDING_DIM" envDefault:"1536"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"`
	QueueURL      string `env:"QUEUE_URL"`

	// LLM & Embeddings
	LLMProvider    string  `env:"LLM_PROVIDER" envDefault:"openai"` // "openai" or "ollama"
	OpenAIKey      string  `env:"OPENAI_API_KEY"`
	LLMModel       string  `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.75"`

	// Ollama
	OllamaURL           string            `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaKeepAlive     string            `env:"OLLAMA_KEEP_ALIVE" envDefault:"5m"`
	OllamaContextWindow int               `env:"OLLAMA_CONTEXT_WINDOW" envDefault:"3900"`
	OllamaTimeout       int               `env:"OLLAMA_TIMEOUT" envDefault:"120"` // seconds
	OllamaOptions       map[string]string `env:"OLLAMA_OPTIONS"`                  // e.g. "num_gpu:1,top_k:40"

	// Cache
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// Context filter
	ContextFilterFile string `env:"CONTEXT_FILTER_FILE"` // YAML keyword table; built-in table when empty

	// Gateway
	QueryServiceURL string `env:"QUERY_SERVICE_URL" envDefault:"http://query:8081"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// OllamaBackendOptions converts OLLAMA_OPTIONS into typed values: integers,
// floats and booleans are parsed, anything else stays a string.
func (c Config) OllamaBackendOptions() map[string]any {
	if len(c.OllamaOptions) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.OllamaOptions))
	for k, v := range c.OllamaOptions {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = i
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else {
			out[k] = v
		}
	}
	return out
}

func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (c Config) OllamaRequestTimeout() time.Duration {
	return time.Duration(c.OllamaTimeout) * time.Second
}
