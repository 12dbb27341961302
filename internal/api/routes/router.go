package routes

import (
	"net/http"

	"github.com/zatekoja/medical-mirrors/internal/api/handlers"
	"github.com/zatekoja/medical-mirrors/internal/api/middleware"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux            *http.ServeMux
	searchHandler  *handlers.SearchHandler
	statusHandler  *handlers.StatusHandler
	sseHandler     *handlers.SSEHandler
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	searchHandler *handlers.SearchHandler,
	statusHandler *handlers.StatusHandler,
	sseHandler *handlers.SSEHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		searchHandler:  searchHandler,
		statusHandler:  statusHandler,
		sseHandler:     sseHandler,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.mux.HandleFunc("GET /api/status", r.statusHandler.GetStatus)
	r.mux.HandleFunc("GET /api/tables", r.searchHandler.ListTables)
	r.mux.HandleFunc("GET /api/drugs/suggest", r.searchHandler.SuggestDrugs)
	r.mux.HandleFunc("GET /api/stream/ingestion", r.sseHandler.StreamIngestion)
	r.mux.HandleFunc("GET /api/stream/sources/{source}", r.sseHandler.StreamSource)
	r.mux.HandleFunc("GET /api/search/{table}", r.searchHandler.Search)
	r.mux.HandleFunc("GET /api/{table}/{id}", r.searchHandler.GetRecord)

	// Last applied is outermost. CORS wraps everything so 304s carry its headers too.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
