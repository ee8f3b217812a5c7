// Package app assembles the question pipeline and its infrastructure from
// configuration. It is shared by the server and the ask command.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/aggregator"
	"github.com/helixir/research-answer-service/internal/cache"
	"github.com/helixir/research-answer-service/internal/config"
	"github.com/helixir/research-answer-service/internal/database"
	"github.com/helixir/research-answer-service/internal/expander"
	"github.com/helixir/research-answer-service/internal/llm"
	"github.com/helixir/research-answer-service/internal/observability"
	"github.com/helixir/research-answer-service/internal/papersources"
	"github.com/helixir/research-answer-service/internal/papersources/arxiv"
	"github.com/helixir/research-answer-service/internal/papersources/core"
	"github.com/helixir/research-answer-service/internal/papersources/pubmed"
	"github.com/helixir/research-answer-service/internal/papersources/semanticscholar"
	"github.com/helixir/research-answer-service/internal/pipeline"
	"github.com/helixir/research-answer-service/internal/relevance"
	"github.com/helixir/research-answer-service/internal/repository"
)

// App holds the wired service graph. DB, Redis and Answers are nil when the
// corresponding backend is not configured.
type App struct {
	Pipeline *pipeline.Pipeline
	Registry *papersources.Registry
	Cache    cache.QueryCache
	DB       *database.DB
	Redis    *redis.Client
	Answers  *repository.PgAnswerRepository

	stopJanitor context.CancelFunc
	janitorDone <-chan struct{}
	logger      zerolog.Logger
}

// Build wires every component described by cfg. The caller must Close the
// returned App.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*App, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	baseClient, err := llm.NewClient(llmFactoryConfig(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	client := llm.NewInstrumentedClient(baseClient, metrics, logger)
	logger.Info().Str("provider", client.Provider()).Msg("LLM client created")

	a.Registry = papersources.NewRegistry()
	a.Registry.SetMaxConcurrency(cfg.Pipeline.MaxConcurrentSearches)
	a.Registry.SetCallTimeout(cfg.Pipeline.CallTimeout)
	a.Registry.SetRecorder(metrics)
	registerPaperSources(a.Registry, cfg, metrics, logger)
	if len(a.Registry.EnabledSources()) == 0 {
		logger.Warn().Msg("no paper sources enabled; questions needing papers will fail")
	}

	if cfg.Cache.Backend == cache.BackendRedis {
		a.Redis = cache.NewRedisClient(redisConfig(cfg.Cache.Redis))
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Cache.Redis.Addr).Msg("redis connection established")
	}

	a.Cache, err = cache.New(cache.Config{
		Backend: cfg.Cache.Backend,
		Redis:   redisConfig(cfg.Cache.Redis),
	}, a.Redis)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	a.stopJanitor = stopJanitor
	a.janitorDone = cache.StartJanitor(janitorCtx, a.Cache, cfg.Cache.JanitorInterval, logger.With().Str("component", "cache").Logger())

	var archive pipeline.AnswerArchive
	if cfg.Database.Enabled {
		if err := a.openArchive(ctx, &cfg.Database); err != nil {
			return nil, err
		}
		archive = a.Answers
	}

	exp := expander.New(client, expander.Config{
		LengthThreshold: cfg.Pipeline.ExpansionLengthThreshold,
		MaxAlternatives: cfg.Pipeline.MaxAlternatives,
		CallTimeout:     cfg.Pipeline.CallTimeout,
	}, logger)

	agg := aggregator.New(exp, a.Registry, a.Cache, metrics, aggregator.Config{
		CacheTTL: cfg.Cache.TTL,
	}, logger)

	a.Pipeline = pipeline.New(pipeline.Deps{
		Client:     client,
		Aggregator: agg,
		Filter:     relevance.New(client, cfg.Pipeline.CallTimeout, logger),
		Archive:    archive,
		Recorder:   metrics,
	}, pipeline.Config{
		TargetCount:       cfg.Pipeline.TargetCount,
		MaxPapers:         cfg.Pipeline.MaxPapers,
		AnalysisBatchSize: cfg.Pipeline.AnalysisBatchSize,
		CallTimeout:       cfg.Pipeline.CallTimeout,
		StreamTimeout:     cfg.Pipeline.StreamTimeout,
	}, logger)

	ok = true
	return a, nil
}

func (a *App) openArchive(ctx context.Context, cfg *config.DatabaseConfig) error {
	db, err := database.New(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.DB = db
	a.logger.Info().Msg("database connection established")

	if cfg.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.MigrationPath, a.logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				a.logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	a.Answers = repository.NewPgAnswerRepository(db)
	return nil
}

// Close releases the cache janitor and every open connection.
func (a *App) Close() {
	if a.stopJanitor != nil {
		a.stopJanitor()
		<-a.janitorDone
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func llmFactoryConfig(cfg config.LLMConfig) llm.FactoryConfig {
	return llm.FactoryConfig{
		Provider:    cfg.Provider,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Models:  llm.Models{Cheap: cfg.OpenAI.CheapModel, Premium: cfg.OpenAI.PremiumModel},
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.Anthropic.APIKey,
			BaseURL: cfg.Anthropic.BaseURL,
			Models:  llm.Models{Cheap: cfg.Anthropic.CheapModel, Premium: cfg.Anthropic.PremiumModel},
		},
	}
}

func redisConfig(cfg config.RedisConfig) cache.RedisConfig {
	return cache.RedisConfig{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		PoolSize:  cfg.PoolSize,
		KeyPrefix: cfg.KeyPrefix,
	}
}

func registerPaperSources(registry *papersources.Registry, cfg *config.Config, recorder papersources.RateLimitRecorder, logger zerolog.Logger) {
	// Semantic Scholar.
	if ssCfg := cfg.PaperSources.SemanticScholar; ssCfg.Enabled {
		registry.Register(semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:           ssCfg.BaseURL,
			APIKey:            ssCfg.APIKey,
			Timeout:           ssCfg.Timeout,
			RateLimit:         ssCfg.RateLimit,
			MaxResults:        ssCfg.MaxResults,
			MaxRetries:        retryBudget(ssCfg.MaxRetries),
			RetryDelay:        ssCfg.RetryDelay,
			Enabled:           true,
			RateLimitRecorder: recorder,
		}, nil))
		logger.Info().Msg("registered paper source: Semantic Scholar")
	}

	// arXiv.
	if axCfg := cfg.PaperSources.ArXiv; axCfg.Enabled {
		registry.Register(arxiv.New(arxiv.Config{
			BaseURL:           axCfg.BaseURL,
			Timeout:           axCfg.Timeout,
			RateLimit:         axCfg.RateLimit,
			MaxResults:        axCfg.MaxResults,
			MaxRetries:        retryBudget(axCfg.MaxRetries),
			RetryDelay:        axCfg.RetryDelay,
			Enabled:           true,
			RateLimitRecorder: recorder,
		}))
		logger.Info().Msg("registered paper source: arXiv")
	}

	// PubMed.
	if pmCfg := cfg.PaperSources.PubMed; pmCfg.Enabled {
		registry.Register(pubmed.New(pubmed.Config{
			BaseURL:           pmCfg.BaseURL,
			APIKey:            pmCfg.APIKey,
			Timeout:           pmCfg.Timeout,
			RateLimit:         pmCfg.RateLimit,
			MaxResults:        pmCfg.MaxResults,
			MaxRetries:        retryBudget(pmCfg.MaxRetries),
			RetryDelay:        pmCfg.RetryDelay,
			Enabled:           true,
			RateLimitRecorder: recorder,
		}))
		logger.Info().Msg("registered paper source: PubMed")
	}

	// CORE (only if API key is provided).
	if coreCfg := cfg.PaperSources.CORE; coreCfg.Enabled && coreCfg.APIKey != "" {
		registry.Register(core.New(core.Config{
			BaseURL:           coreCfg.BaseURL,
			APIKey:            coreCfg.APIKey,
			Timeout:           coreCfg.Timeout,
			RateLimit:         coreCfg.RateLimit,
			MaxResults:        coreCfg.MaxResults,
			MaxRetries:        retryBudget(coreCfg.MaxRetries),
			RetryDelay:        coreCfg.RetryDelay,
			Enabled:           true,
			RateLimitRecorder: recorder,
		}))
		logger.Info().Msg("registered paper source: CORE")
	}
}

// retryBudget maps a configured retry count to the HTTP client's budget.
// The client reads zero as its default, so a configured zero becomes
// papersources.NoRetries.
func retryBudget(configured int) int {
	if configured == 0 {
		return papersources.NoRetries
	}
	return configured
}
