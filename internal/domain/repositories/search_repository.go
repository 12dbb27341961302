package repositories

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// SearchRepository runs full-text queries over the storage tables.
type SearchRepository interface {
	Search(ctx context.Context, query entities.SearchQuery) ([]entities.SearchResult, error)
	// SearchTerms matches a to_tsquery expression such as "a | b" and returns compact hits.
	SearchTerms(ctx context.Context, table, tsquery string, limit int) ([]entities.RelatedItem, error)
	GetDetails(ctx context.Context, table, id string) (map[string]any, error)
}
