package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/medical-mirrors/internal/adapters/cache"
	"github.com/zatekoja/medical-mirrors/internal/adapters/database"
	"github.com/zatekoja/medical-mirrors/internal/adapters/events"
	"github.com/zatekoja/medical-mirrors/internal/adapters/search"
	"github.com/zatekoja/medical-mirrors/internal/api/handlers"
	"github.com/zatekoja/medical-mirrors/internal/api/middleware"
	"github.com/zatekoja/medical-mirrors/internal/api/routes"
	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	"github.com/zatekoja/medical-mirrors/pkg/config"
	"github.com/zatekoja/medical-mirrors/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vault, err := secrets.ApplyVaultSecrets(ctx, secrets.VaultConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load vault secrets")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-api", cfg.Env)
	if len(vault.Loaded) > 0 {
		log.Info().Str("path", vault.Path).Int("loaded", len(vault.Loaded)).Int("skipped", len(vault.Skipped)).Msg("applied vault secrets")
	}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			// Search still works without caching.
			log.Warn().Err(err).Msg("redis unavailable, serving without result cache")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
		}
	}

	var searchRepo repositories.SearchRepository = database.NewSearchAdapter(pgClient)
	if cacheProvider != nil {
		searchRepo = database.NewCachedSearchAdapter(searchRepo, cacheProvider)
		log.Info().Msg("search adapter wrapped with caching layer")
	}

	var drugIndex providers.DrugIndex
	if cfg.Typesense.Enabled {
		typesenseClient, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("typesense unavailable, drug suggestions fall back to full-text search")
		} else {
			drugIndex = search.NewTypesenseAdapter(typesenseClient)
		}
	}

	// Ingestion runs out of process; its completion events clear stale results.
	var invalidation *services.CacheInvalidationService
	if cacheProvider != nil && eventBus != nil {
		invalidation = services.NewCacheInvalidationService(cacheProvider, eventBus, database.SearchCachePattern)
		if err := invalidation.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to start cache invalidation")
			invalidation = nil
		}
	}

	sources, err := downloader.LoadCatalog(cfg.Mirrors.SourcesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load source catalog")
	}
	store, err := downloader.NewStateStore(cfg.Mirrors.StateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open download state")
	}
	// Read-only here: the API reports status, the mirrors CLI runs downloads.
	orchestrator, err := services.NewDownloadOrchestrator(sources, cfg.Mirrors, nil, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build download orchestrator")
	}

	searchService := services.NewSearchService(searchRepo, database.NewDrugAdapter(pgClient), drugIndex, metrics)

	router := routes.NewRouter(
		handlers.NewSearchHandler(searchService),
		handlers.NewStatusHandler(orchestrator),
		handlers.NewSSEHandler(eventBus, cfg.Server.SSEHeartbeat),
		middleware.ParseAllowedOrigins(cfg.Server.AllowedOrigins),
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if invalidation != nil {
		invalidation.Stop()
	}
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}
}
