package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
)

// ObservabilityMiddleware adds a span and a duration sample per request
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartSpan(r.Context(), "HTTP "+r.Method,
				attribute.String("http.method", r.Method),
				attribute.String("http.user_agent", r.UserAgent()),
			)
			defer span.End()

			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			req := r.WithContext(ctx)
			start := time.Now()

			next.ServeHTTP(rw, req)

			// The mux fills in Pattern on the request it dispatched. Raw paths
			// carry record ids and would blow up cardinality.
			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			span.SetName(route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rw.statusCode),
			)
			if metrics != nil {
				observability.RecordDuration(ctx, metrics.RequestDuration, time.Since(start),
					attribute.String("http.method", r.Method),
					attribute.String("http.route", route),
					attribute.Int("http.status_code", rw.statusCode),
				)
			}
		})
	}
}
