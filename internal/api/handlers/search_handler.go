package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
)

// SearchService defines the handler dependency for full-text search.
type SearchService interface {
	Tables() []string
	Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error)
	GetDetails(ctx context.Context, table, id string) (map[string]any, error)
	SuggestDrugs(ctx context.Context, prefix string, limit int) ([]providers.DrugSuggestion, error)
}

// Query parameters with a fixed meaning; every other parameter is a column filter.
var reservedParams = map[string]bool{"q": true, "limit": true}

// SearchHandler handles search and record lookup requests
type SearchHandler struct {
	service SearchService
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// ListTables handles GET /api/tables
func (h *SearchHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables := h.service.Tables()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tables": tables,
		"count":  len(tables),
	})
}

// Search handles GET /api/search/{table}?q=...&limit=...&<column>=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	query := entities.SearchQuery{
		Table: r.PathValue("table"),
		Query: params.Get("q"),
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.MaxResults = limit
	}
	for name, values := range params {
		if reservedParams[name] || len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			continue
		}
		if query.Filters == nil {
			query.Filters = make(map[string]string)
		}
		query.Filters[name] = values[0]
	}

	results, err := h.service.Search(r.Context(), query)
	if err != nil {
		respondWithAppError(w, err, "search failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"table":   query.Table,
		"query":   strings.TrimSpace(query.Query),
		"results": results,
		"count":   len(results),
	})
}

// GetRecord handles GET /api/{table}/{id}
func (h *SearchHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "record ID is required")
		return
	}

	record, err := h.service.GetDetails(r.Context(), table, id)
	if err != nil {
		respondWithAppError(w, err, "failed to load record")
		return
	}

	respondWithJSON(w, http.StatusOK, record)
}

// SuggestDrugs handles GET /api/drugs/suggest?q=...&limit=...
func (h *SearchHandler) SuggestDrugs(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	if prefix == "" {
		respondWithError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := entities.DefaultSearchResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	suggestions, err := h.service.SuggestDrugs(r.Context(), prefix, limit)
	if err != nil {
		respondWithAppError(w, err, "drug suggestions unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}
