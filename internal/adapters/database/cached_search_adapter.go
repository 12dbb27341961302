package database

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
)

// Cache TTLs (in seconds)
const (
	searchResultsTTL = 120
	detailsTTL       = 300
)

// CachedSearchAdapter wraps a SearchRepository with a result cache.
type CachedSearchAdapter struct {
	adapter repositories.SearchRepository
	cache   providers.CacheProvider
}

// NewCachedSearchAdapter creates a new cached search adapter
func NewCachedSearchAdapter(adapter repositories.SearchRepository, cache providers.CacheProvider) repositories.SearchRepository {
	return &CachedSearchAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

// SearchCachePattern matches every cached search and detail entry of table.
func SearchCachePattern(table string) []string {
	return []string{
		fmt.Sprintf("search:%s:*", table),
		fmt.Sprintf("details:%s:*", table),
	}
}

func searchCacheKey(q entities.SearchQuery) string {
	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\x00%d", strings.ToLower(strings.TrimSpace(q.Query)), q.Limit())
	for _, name := range names {
		fmt.Fprintf(&b, "\x00%s=%s", name, q.Filters[name])
	}
	sum := sha1.Sum([]byte(b.String()))
	return fmt.Sprintf("search:%s:%s", q.Table, hex.EncodeToString(sum[:]))
}

func detailsCacheKey(table, id string) string {
	return fmt.Sprintf("details:%s:%s", table, id)
}

// Search returns cached results when present.
func (a *CachedSearchAdapter) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	cacheKey := searchCacheKey(q)
	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var results []entities.SearchResult
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
		log.Warn().Err(err).Str("key", cacheKey).Msg("failed to unmarshal cached search results")
	}

	results, err := a.adapter.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	a.store(cacheKey, results, searchResultsTTL)
	return results, nil
}

// SearchTerms is not cached: it only runs in batch enrichment.
func (a *CachedSearchAdapter) SearchTerms(ctx context.Context, table, tsquery string, limit int) ([]entities.RelatedItem, error) {
	return a.adapter.SearchTerms(ctx, table, tsquery, limit)
}

// GetDetails returns a cached record when present.
func (a *CachedSearchAdapter) GetDetails(ctx context.Context, table, id string) (map[string]any, error) {
	cacheKey := detailsCacheKey(table, id)
	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var record map[string]any
		if err := json.Unmarshal(cached, &record); err == nil {
			return record, nil
		}
	}

	record, err := a.adapter.GetDetails(ctx, table, id)
	if err != nil {
		return nil, err
	}
	a.store(cacheKey, record, detailsTTL)
	return record, nil
}

// store updates the cache asynchronously to avoid blocking the response.
func (a *CachedSearchAdapter) store(key string, value any, ttl int) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	go func() {
		if err := a.cache.Set(context.Background(), key, data, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache search entry")
		}
	}()
}
