package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/zatekoja/medical-mirrors/internal/adapters/cache"
	"github.com/zatekoja/medical-mirrors/internal/adapters/database"
	"github.com/zatekoja/medical-mirrors/internal/adapters/events"
	"github.com/zatekoja/medical-mirrors/internal/adapters/search"
	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/llm"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/nlp"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	"github.com/zatekoja/medical-mirrors/internal/parser"
	"github.com/zatekoja/medical-mirrors/internal/validation"
	"github.com/zatekoja/medical-mirrors/pkg/config"
	"github.com/zatekoja/medical-mirrors/pkg/secrets"
)

// loadConfig pulls Vault secrets into the environment, reads it, then overlays
// viper values (config file, MIRRORS_* variables, flags) onto the pipeline settings.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.VaultConfigFromEnv()); err != nil {
		return nil, fmt.Errorf("load vault secrets: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	overlayMirrors(&cfg.Mirrors, viper.GetViper())
	if err := cfg.Mirrors.Validate(); err != nil {
		return nil, err
	}
	if level := viper.GetString("log_level"); level != "" {
		_ = os.Setenv("LOG_LEVEL", level)
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)
	return cfg, nil
}

func overlayMirrors(m *config.MirrorsConfig, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) && v.GetInt(key) > 0 {
			*dst = v.GetInt(key)
		}
	}

	setString("data_dir", &m.DataDir)
	setString("state_dir", &m.StateDir)
	setString("sources_file", &m.SourcesFile)
	setString("user_agent", &m.UserAgent)
	setInt("max_concurrent_sources", &m.MaxConcurrentSources)
	setInt("download_workers", &m.DownloadWorkers)
	setInt("large_source_threshold_mb", &m.LargeSourceThresholdMB)
	setInt("daily_retry_cap", &m.DailyRetryCap)
	setInt("parser_workers", &m.ParserWorkers)
	setInt("chunk_size", &m.ChunkSize)
	setInt("commit_batch_size", &m.CommitBatchSize)
	setInt("consolidation_batch_size", &m.ConsolidationBatchSize)
	if v.IsSet("stagger_delay") && v.GetDuration("stagger_delay") > 0 {
		m.StaggerDelay = v.GetDuration("stagger_delay")
	}
	if v.IsSet("force_fresh") {
		m.ForceFresh = v.GetBool("force_fresh")
	}
}

// app holds the wired pipeline for one command invocation.
type app struct {
	cfg     *config.Config
	metrics *observability.Metrics
	closers []func() error

	db        *postgres.Client
	records   repositories.RecordRepository
	drugs     repositories.DrugRepository
	topics    repositories.TopicRepository
	searchDB  repositories.SearchRepository
	cache     providers.CacheProvider
	eventBus  providers.EventBus
	drugIndex providers.DrugIndex
}

type appOptions struct {
	database  bool
	typesense bool
}

// newApp connects the collaborators a command needs. Redis is optional
// everywhere; without it progress events and cache invalidation are skipped.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
		}
	}
	if a.metrics, err = observability.InitMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if opts.database {
		a.db, err = postgres.NewClient(&cfg.Database)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.db.Close)
		a.records = database.NewRecordAdapter(a.db)
		a.drugs = database.NewDrugAdapter(a.db)
		a.topics = database.NewTopicAdapter(a.db)
		a.searchDB = database.NewSearchAdapter(a.db)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without events and cache")
		} else {
			a.closers = append(a.closers, redisClient.Close)
			a.cache = cache.NewRedisAdapter(redisClient)
			a.eventBus = events.NewRedisEventBus(redisClient)
			a.closers = append(a.closers, a.eventBus.Close)
		}
	}

	if opts.typesense && cfg.Typesense.Enabled {
		client, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("typesense unavailable")
		} else {
			a.drugIndex = search.NewTypesenseAdapter(client)
		}
	}
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}
}

func (a *app) sources() ([]downloader.Source, error) {
	return downloader.LoadCatalog(a.cfg.Mirrors.SourcesFile)
}

func (a *app) orchestrator() (*services.DownloadOrchestrator, error) {
	sources, err := a.sources()
	if err != nil {
		return nil, err
	}
	store, err := downloader.NewStateStore(a.cfg.Mirrors.StateDir)
	if err != nil {
		return nil, err
	}
	opts := []services.OrchestratorOption{services.WithMetrics(a.metrics)}
	if a.eventBus != nil {
		opts = append(opts, services.WithEventBus(a.eventBus))
	}
	if a.drugs != nil {
		opts = append(opts, services.WithDrugRepository(a.drugs))
	}
	return services.NewDownloadOrchestrator(sources, a.cfg.Mirrors, &http.Client{}, store, opts...)
}

func (a *app) ingestion() *services.IngestionService {
	logger := observability.Component("parser")
	return services.NewIngestionService(
		parser.NewPool(a.cfg.Mirrors.ParserWorkers, a.cfg.Mirrors.ChunkSize, logger),
		validation.NewValidator(observability.Component("validator")),
		a.records, a.drugs, a.eventBus, a.metrics, a.cfg.Mirrors.CommitBatchSize,
	)
}

func (a *app) consolidation() *services.DrugConsolidationService {
	return services.NewDrugConsolidationService(a.drugs, a.eventBus, a.metrics, a.cfg.Mirrors.ConsolidationBatchSize)
}

func (a *app) crossReference() *services.CrossReferenceService {
	var (
		extractor providers.EntityExtractor
		generator providers.TextGenerator
	)
	if a.cfg.NLP.Enabled {
		if client, err := nlp.NewClient(&a.cfg.NLP); err != nil {
			log.Warn().Err(err).Msg("NLP service unavailable, using title and keywords only")
		} else {
			extractor = client
		}
	}
	if a.cfg.LLM.Enabled {
		if client, err := llm.NewClient(&a.cfg.LLM); err != nil {
			log.Warn().Err(err).Msg("LLM service unavailable, provider notes use the template")
		} else {
			generator = client
		}
	}
	return services.NewCrossReferenceService(a.topics, a.searchDB, extractor, generator)
}

func (a *app) search() *services.SearchService {
	return services.NewSearchService(a.searchDB, a.drugs, a.drugIndex, a.metrics)
}

// invalidateCache clears cached search results for table. Only needed when
// no API process is listening for ingestion events.
func (a *app) invalidateCache(ctx context.Context, table string) {
	if a.cache == nil {
		return
	}
	svc := services.NewCacheInvalidationService(a.cache, a.eventBus, database.SearchCachePattern)
	if err := svc.InvalidateTable(ctx, table); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("cache invalidation failed")
	}
}
