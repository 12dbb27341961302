package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
)

func tablePatterns(table string) []string {
	return []string{"search:" + table + ":*", "details:" + table + ":*"}
}

func seedCache(t *testing.T, cache *fakeCache, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, cache.Set(context.Background(), k, []byte("cached"), 300))
	}
}

func TestCacheInvalidationService_Start(t *testing.T) {
	bus := newFakeEventBus()
	service := services.NewCacheInvalidationService(newFakeCache(), bus, tablePatterns)

	require.NoError(t, service.Start())
	assert.Len(t, bus.subscribers[providers.EventChannelIngestion], 1)
	service.Stop()
}

func TestCacheInvalidationService_HandleEvent(t *testing.T) {
	tests := []struct {
		name        string
		event       *entities.IngestionEvent
		wantCleared bool
	}{
		{
			name:        "ingest completed clears the table",
			event:       entities.NewIngestionEvent("", "icd10", entities.IngestionEventIngestCompleted, map[string]any{"table": entities.TableIcd10Codes}),
			wantCleared: true,
		},
		{
			name:        "consolidation clears its table",
			event:       entities.NewIngestionEvent("", "", entities.IngestionEventConsolidated, map[string]any{"table": entities.TableIcd10Codes}),
			wantCleared: true,
		},
		{
			name:  "download progress is ignored",
			event: entities.NewIngestionEvent("run", "icd10", entities.IngestionEventSourceCompleted, map[string]any{"table": entities.TableIcd10Codes}),
		},
		{
			name:  "event without table is ignored",
			event: entities.NewIngestionEvent("", "icd10", entities.IngestionEventIngestCompleted, nil),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newFakeCache()
			bus := newFakeEventBus()
			seedCache(t, cache, "search:icd10_codes:abc", "details:icd10_codes:E11.9", "search:exercises:def")

			service := services.NewCacheInvalidationService(cache, bus, tablePatterns)
			require.NoError(t, service.Start())
			defer service.Stop()

			require.NoError(t, bus.Publish(context.Background(), providers.EventChannelIngestion, tt.event))

			if tt.wantCleared {
				assert.Eventually(t, func() bool {
					return !cache.has("search:icd10_codes:abc") && !cache.has("details:icd10_codes:E11.9")
				}, time.Second, 10*time.Millisecond)
			} else {
				// Give the listener a chance to act before asserting nothing changed.
				time.Sleep(50 * time.Millisecond)
				assert.True(t, cache.has("search:icd10_codes:abc"))
			}
			assert.True(t, cache.has("search:exercises:def"))
		})
	}
}

func TestCacheInvalidationService_InvalidateAll(t *testing.T) {
	cache := newFakeCache()
	seedCache(t, cache, "search:icd10_codes:abc", "details:pubmed_articles:1", "unrelated")
	service := services.NewCacheInvalidationService(cache, newFakeEventBus(), tablePatterns)

	require.NoError(t, service.InvalidateAll(context.Background()))

	assert.False(t, cache.has("search:icd10_codes:abc"))
	assert.False(t, cache.has("details:pubmed_articles:1"))
	assert.True(t, cache.has("unrelated"))
}
