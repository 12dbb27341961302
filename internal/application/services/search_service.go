package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

const indexPageSize = 500

// SearchService answers full-text and drug name queries over the mirrors.
type SearchService struct {
	search  repositories.SearchRepository
	drugs   repositories.DrugRepository
	index   providers.DrugIndex
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewSearchService creates a search service. drugs and index are optional;
// without index, drug suggestions fall back to full-text search.
func NewSearchService(
	search repositories.SearchRepository,
	drugs repositories.DrugRepository,
	index providers.DrugIndex,
	metrics *observability.Metrics,
) *SearchService {
	return &SearchService{
		search:  search,
		drugs:   drugs,
		index:   index,
		metrics: metrics,
		logger:  observability.Component("search"),
	}
}

// Tables lists the searchable tables.
func (s *SearchService) Tables() []string {
	return entities.KnownTables()
}

// Search runs a ranked full-text query.
func (s *SearchService) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	q.Query = strings.TrimSpace(q.Query)
	if !entities.IsKnownTable(q.Table) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", q.Table))
	}
	if q.Query == "" {
		return nil, apperrors.NewValidationError("search query is required")
	}

	ctx, span := observability.StartSpan(ctx, "search.Search",
		attribute.String("table", q.Table), attribute.Int("limit", q.Limit()))
	defer span.End()

	start := time.Now()
	results, err := s.search.Search(ctx, q)
	if s.metrics != nil {
		observability.RecordDuration(ctx, s.metrics.SearchDuration, time.Since(start), attribute.String("table", q.Table))
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// GetDetails returns one row of table by its natural key.
func (s *SearchService) GetDetails(ctx context.Context, table, id string) (map[string]any, error) {
	if !entities.IsKnownTable(table) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewValidationError("id is required")
	}
	return s.search.GetDetails(ctx, table, id)
}

// SuggestDrugs completes a drug name prefix.
func (s *SearchService) SuggestDrugs(ctx context.Context, prefix string, limit int) ([]providers.DrugSuggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, apperrors.NewValidationError("prefix is required")
	}
	limit = entities.SearchQuery{MaxResults: limit}.Limit()

	if s.index != nil {
		suggestions, err := s.index.Suggest(ctx, prefix, limit)
		if err == nil {
			return suggestions, nil
		}
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("drug index unavailable, falling back to full-text search")
	}

	results, err := s.search.Search(ctx, entities.SearchQuery{
		Table:      entities.TableConsolidatedDrugs,
		Query:      prefix,
		MaxResults: limit,
	})
	if err != nil {
		return nil, err
	}
	suggestions := make([]providers.DrugSuggestion, 0, len(results))
	for _, r := range results {
		suggestions = append(suggestions, suggestionFromRecord(r))
	}
	return suggestions, nil
}

func suggestionFromRecord(r entities.SearchResult) providers.DrugSuggestion {
	sg := providers.DrugSuggestion{GenericName: r.ID}
	if class, ok := r.Record["therapeutic_class"].(string); ok {
		sg.TherapeuticClass = class
	}
	if score, ok := r.Record["confidence_score"].(float64); ok {
		sg.ConfidenceScore = score
	}
	switch brands := r.Record["brand_names"].(type) {
	case []string:
		sg.BrandNames = brands
	case []any:
		for _, b := range brands {
			if str, ok := b.(string); ok {
				sg.BrandNames = append(sg.BrandNames, str)
			}
		}
	}
	if sg.BrandNames == nil {
		sg.BrandNames = []string{}
	}
	return sg
}

// IndexDrugs loads every consolidated drug into the suggest index.
func (s *SearchService) IndexDrugs(ctx context.Context) (int, error) {
	if s.index == nil || s.drugs == nil {
		return 0, apperrors.NewValidationError("drug indexing needs a drug repository and a drug index")
	}
	if err := s.index.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	indexed, after := 0, ""
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		page, err := s.drugs.ListConsolidated(ctx, after, indexPageSize)
		if err != nil {
			return indexed, err
		}
		if len(page) == 0 {
			break
		}
		n, err := s.index.IndexDrugs(ctx, page)
		indexed += n
		if err != nil {
			return indexed, err
		}
		after = page[len(page)-1].GenericName
		if len(page) < indexPageSize {
			break
		}
	}
	s.logger.Info().Int("indexed", indexed).Msg("drug index rebuilt")
	return indexed, nil
}
