package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medical-mirrors/internal/validation"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

const (
	minFilterPrefix = "min_"
	maxFilterPrefix = "max_"
)

// SearchAdapter implements SearchRepository over the generated search_vector columns.
type SearchAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSearchAdapter creates a new search adapter
func NewSearchAdapter(client *postgres.Client) repositories.SearchRepository {
	return &SearchAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Search ranks rows matching plainto_tsquery(query) by ts_rank, then title.
func (a *SearchAdapter) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	fields, ok := tableFields(q.Table)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", q.Table))
	}
	if strings.TrimSpace(q.Query) == "" {
		return nil, apperrors.NewValidationError("search query is required")
	}
	filters, err := filterExpressions(fields, q.Filters)
	if err != nil {
		return nil, err
	}

	tsquery := goqu.L("plainto_tsquery('english', ?)", q.Query)
	cols := make([]any, 0, len(fields)+1)
	for _, name := range fieldNames(fields) {
		cols = append(cols, name)
	}
	cols = append(cols, goqu.L("ts_rank(search_vector, ?)", tsquery).As("rank"))

	where := append([]exp.Expression{goqu.L("search_vector @@ ?", tsquery)}, filters...)
	title, key := entities.TitleColumns[q.Table], entities.KeyColumns[q.Table]
	// Key last so equal rank and title still page in a stable order.
	query, args, err := a.db.From(q.Table).
		Select(cols...).
		Where(where...).
		Order(goqu.I("rank").Desc(), goqu.I(title).Asc(), goqu.I(key).Asc()).
		Limit(uint(q.Limit())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build search query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to search "+q.Table, err)
	}
	defer rows.Close()

	results := []entities.SearchResult{}
	for rows.Next() {
		var rank float64
		record, err := scanRecord(rows.Scan, fields, &rank)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan search result", err)
		}
		results = append(results, entities.SearchResult{
			Table:  q.Table,
			ID:     fmt.Sprint(record[key]),
			Title:  stringValue(record[title]),
			Rank:   rank,
			Record: record,
		})
	}
	return results, rows.Err()
}

// filterExpressions turns column filters into predicates. Unknown columns
// are rejected so a typo never silently widens the result set.
func filterExpressions(fields []validation.Field, filters map[string]string) ([]exp.Expression, error) {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var exprs []exp.Expression
	for _, name := range names {
		value := filters[name]
		column, op := name, ""
		switch {
		case strings.HasPrefix(name, minFilterPrefix) && hasField(fields, strings.TrimPrefix(name, minFilterPrefix)):
			column, op = strings.TrimPrefix(name, minFilterPrefix), minFilterPrefix
		case strings.HasPrefix(name, maxFilterPrefix) && hasField(fields, strings.TrimPrefix(name, maxFilterPrefix)):
			column, op = strings.TrimPrefix(name, maxFilterPrefix), maxFilterPrefix
		case !hasField(fields, name):
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown filter column %q", name))
		}
		switch op {
		case minFilterPrefix:
			exprs = append(exprs, goqu.C(column).Gte(value))
		case maxFilterPrefix:
			exprs = append(exprs, goqu.C(column).Lte(value))
		default:
			if f, _ := fieldByName(fields, column); f.Kind == validation.KindArray {
				exprs = append(exprs, goqu.L("? = ANY(?)", value, goqu.C(column)))
				continue
			}
			exprs = append(exprs, goqu.Ex{column: value})
		}
	}
	return exprs, nil
}

// SearchTerms matches an OR-combined to_tsquery expression.
func (a *SearchAdapter) SearchTerms(ctx context.Context, table, tsquery string, limit int) ([]entities.RelatedItem, error) {
	if !entities.IsKnownTable(table) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}
	if strings.TrimSpace(tsquery) == "" || limit <= 0 {
		return []entities.RelatedItem{}, nil
	}
	tsq := goqu.L("to_tsquery('english', ?)", tsquery)
	key, title := entities.KeyColumns[table], entities.TitleColumns[table]

	query, args, err := a.db.From(table).
		Select(goqu.C(key), goqu.C(title), goqu.L("ts_rank(search_vector, ?)", tsq).As("rank")).
		Where(goqu.L("search_vector @@ ?", tsq)).
		Order(goqu.I("rank").Desc(), goqu.C(title).Asc(), goqu.C(key).Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to search "+table, err)
	}
	defer rows.Close()

	items := []entities.RelatedItem{}
	for rows.Next() {
		var (
			item  entities.RelatedItem
			label sql.NullString
		)
		if err := rows.Scan(&item.ID, &label, &item.Rank); err != nil {
			return nil, apperrors.NewInternalError("failed to scan related item", err)
		}
		item.Title = label.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetDetails returns the full row of id in table.
func (a *SearchAdapter) GetDetails(ctx context.Context, table, id string) (map[string]any, error) {
	fields, ok := tableFields(table)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}
	cols := make([]any, 0, len(fields))
	for _, name := range fieldNames(fields) {
		cols = append(cols, name)
	}
	key := entities.KeyColumns[table]

	query, args, err := a.db.From(table).
		Select(cols...).
		Where(goqu.Ex{key: id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	row := a.client.DB().QueryRowContext(ctx, query, args...)
	record, err := scanRecord(row.Scan, fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s with %s %s not found", table, key, id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get "+table, err)
	}
	return record, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
