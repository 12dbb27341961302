package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
)

// CachePatternFunc returns the cache key patterns that hold data read from table.
type CachePatternFunc func(table string) []string

// CacheInvalidationService drops cached search results for a table once new
// rows for it have been committed.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	patterns CachePatternFunc
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus, patterns CachePatternFunc) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		patterns: patterns,
		logger:   observability.Component("cache_invalidation"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for ingestion events
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelIngestion)
	if err != nil {
		return fmt.Errorf("failed to subscribe to ingestion events: %w", err)
	}

	go s.processEvents(eventChan)
	s.logger.Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service and waits for the listener to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	<-s.done
	s.logger.Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.IngestionEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

// handleEvent invalidates only on events that commit rows. Download progress
// events leave the cache alone.
func (s *CacheInvalidationService) handleEvent(event *entities.IngestionEvent) {
	if event.EventType != entities.IngestionEventIngestCompleted && event.EventType != entities.IngestionEventConsolidated {
		return
	}
	table, _ := event.Details["table"].(string)
	if table == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.InvalidateTable(ctx, table); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Str("event_id", event.ID).Msg("failed to invalidate cache")
	}
}

// InvalidateTable removes every cached search and details entry for table.
func (s *CacheInvalidationService) InvalidateTable(ctx context.Context, table string) error {
	for _, pattern := range s.patterns(table) {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to invalidate pattern %s: %w", pattern, err)
		}
		s.logger.Debug().Str("pattern", pattern).Msg("invalidated cache pattern")
	}
	return nil
}

// InvalidateAll removes cached entries for every known table. Used after a
// state reset or a manual data load.
func (s *CacheInvalidationService) InvalidateAll(ctx context.Context) error {
	for _, table := range entities.KnownTables() {
		if err := s.InvalidateTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}
