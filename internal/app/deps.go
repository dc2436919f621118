package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/samber/lo"

	"doc-scope/internal/cache"
	"doc-scope/internal/config"
	"doc-scope/internal/contextfilter"
	"doc-scope/internal/embeddings"
	"doc-scope/internal/llm"
	"doc-scope/internal/llm/ollama"
	"doc-scope/internal/logger"
	"doc-scope/internal/queue"
	"doc-scope/internal/store"
)

// Answerer is what the query service needs from the LLM.
type Answerer interface {
	llm.Client
	llm.Streamer
}

// Deps bundles common runtime dependencies for services. Components not
// requested through Options are left nil.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Store    store.Store
	Filter   *contextfilter.Matcher
	Queue    queue.Queue
	Embedder embeddings.Embedder
	LLM      Answerer
	Cache    cache.Cache
}

// Options selects the components a service needs beyond store and filter.
type Options struct {
	Queue bool
	LLM   bool // chat model and embedder
	Cache bool
}

// Build loads env, config, and the requested components.
func Build(opts Options) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	deps := Deps{Config: cfg, Log: log}
	var err error

	if deps.Store, err = buildStore(cfg, log); err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	if deps.Filter, err = buildFilter(cfg, log); err != nil {
		return Deps{}, fmt.Errorf("failed to initialize context filter: %w", err)
	}
	if opts.Queue {
		if deps.Queue, err = buildQueue(cfg, log); err != nil {
			return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
		}
	}
	if opts.LLM {
		if deps.LLM, err = buildLLM(cfg, log); err != nil {
			return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		if deps.Embedder, err = buildEmbedder(cfg, log); err != nil {
			return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}
	if opts.Cache {
		deps.Cache = buildCache(cfg, log)
	}
	return deps, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store", "embedding_dim", cfg.EmbeddingDim)
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildFilter(cfg config.Config, log *slog.Logger) (*contextfilter.Matcher, error) {
	if cfg.ContextFilterFile == "" {
		return contextfilter.New(log, nil), nil
	}
	spaces, err := contextfilter.LoadSpaces(cfg.ContextFilterFile)
	if err != nil {
		return nil, err
	}
	log.Info("using context filter spaces from file", "path", cfg.ContextFilterFile, "spaces", len(spaces))
	return contextfilter.New(log, spaces), nil
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("docscope"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (Answerer, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel), cfg.LLMTemperature)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	case "ollama":
		client, err := llm.NewOllamaClient(ollamaOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
		}
		log.Info("using Ollama LLM client", "model", cfg.LLMModel, "url", cfg.OllamaURL, "keep_alive", cfg.OllamaKeepAlive)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: openai, ollama)", cfg.LLMProvider)
	}
}

func ollamaOptions(cfg config.Config) ollama.Options {
	return ollama.Options{
		Model:             cfg.LLMModel,
		BaseURL:           cfg.OllamaURL,
		Temperature:       lo.ToPtr(cfg.LLMTemperature),
		AdditionalOptions: cfg.OllamaBackendOptions(),
		ContextWindow:     cfg.OllamaContextWindow,
		KeepAlive:         cfg.OllamaKeepAlive,
		RequestTimeout:    cfg.OllamaRequestTimeout(),
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return embedder, nil
	case "ollama":
		// Ollama ignores the key.
		embedder, err := embeddings.NewOpenAIEmbedder("ollama", openai.EmbeddingModel(cfg.EmbeddingModel),
			option.WithBaseURL(ollama.APIBase(cfg.OllamaURL)))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama embedder: %w", err)
		}
		log.Info("using Ollama embedder", "model", cfg.EmbeddingModel, "url", cfg.OllamaURL)
		return embedder, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: openai, ollama)", cfg.LLMProvider)
	}
}

// buildCache falls back to a no-op cache when Redis is not configured or unreachable.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, query cache disabled")
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, query cache disabled", "err", err)
		return cache.NewNoOpCache()
	}
	log.Info("using Redis query cache", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTLDuration())
	return c
}
