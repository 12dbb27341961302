package routes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medical-mirrors/internal/api/handlers"
	"github.com/zatekoja/medical-mirrors/internal/api/routes"
	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

type stubSearch struct {
	lastQuery entities.SearchQuery
}

func (s *stubSearch) Tables() []string { return []string{entities.TableIcd10Codes} }

func (s *stubSearch) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	s.lastQuery = q
	return []entities.SearchResult{{Table: q.Table, ID: "E11.9"}}, nil
}

func (s *stubSearch) GetDetails(ctx context.Context, table, id string) (map[string]any, error) {
	if id != "E11.9" {
		return nil, apperrors.NewNotFoundError("not found")
	}
	return map[string]any{"table": table, "code": id}, nil
}

func (s *stubSearch) SuggestDrugs(ctx context.Context, prefix string, limit int) ([]providers.DrugSuggestion, error) {
	return []providers.DrugSuggestion{{GenericName: prefix + "in"}}, nil
}

type stubStatus struct{}

func (stubStatus) GetStatus(now time.Time) services.OrchestratorStatus {
	return services.OrchestratorStatus{TotalSources: 3}
}

func newTestServer(t *testing.T) (*httptest.Server, *stubSearch) {
	t.Helper()
	search := &stubSearch{}
	router := routes.NewRouter(
		handlers.NewSearchHandler(search),
		handlers.NewStatusHandler(stubStatus{}),
		handlers.NewSSEHandler(nil, 0),
		[]string{"https://app.example"},
		nil,
	)
	srv := httptest.NewServer(router.SetupRoutes())
	t.Cleanup(srv.Close)
	return srv, search
}

func TestRouter_Routes(t *testing.T) {
	srv, search := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantKey    string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK},
		{name: "status", path: "/api/status", wantStatus: http.StatusOK, wantKey: "total_sources"},
		{name: "tables", path: "/api/tables", wantStatus: http.StatusOK, wantKey: "tables"},
		{name: "suggest", path: "/api/drugs/suggest?q=metform", wantStatus: http.StatusOK, wantKey: "suggestions"},
		{name: "search", path: "/api/search/icd10_codes?q=diabetes", wantStatus: http.StatusOK, wantKey: "results"},
		{name: "record", path: "/api/icd10_codes/E11.9", wantStatus: http.StatusOK, wantKey: "code"},
		{name: "missing record", path: "/api/icd10_codes/Z00", wantStatus: http.StatusNotFound, wantKey: "error"},
		{name: "stream without event bus", path: "/api/stream/ingestion", wantStatus: http.StatusServiceUnavailable, wantKey: "error"},
		{name: "source stream without event bus", path: "/api/stream/sources/icd10", wantStatus: http.StatusServiceUnavailable, wantKey: "error"},
		{name: "unknown route", path: "/nope", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := srv.Client().Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantKey != "" {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Contains(t, body, tt.wantKey)
			}
		})
	}
	assert.Equal(t, entities.TableIcd10Codes, search.lastQuery.Table)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/search/icd10_codes", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
