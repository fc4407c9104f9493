package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	"go.opentelemetry.io/otel/attribute"
)

// ObservabilityMiddleware opens a span per request and records request metrics
// under the route pattern mux would dispatch to, so queue and room ids never
// become metric labels. metrics and mux may be nil.
func ObservabilityMiddleware(metrics *observability.Metrics, mux *http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeOf(mux, r)

			ctx, span := observability.StartSpan(r.Context(), r.Method+" "+route)
			defer span.End()
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			)

			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
			if rw.statusCode >= http.StatusInternalServerError {
				span.SetAttributes(attribute.Bool("error", true))
			}
			observability.RecordRequestMetric(ctx, metrics, r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}

// routeOf returns the path part of the pattern registered for r, or
// "unmatched" when no pattern serves it.
func routeOf(mux *http.ServeMux, r *http.Request) string {
	if mux == nil {
		return r.URL.Path
	}
	_, pattern := mux.Handler(r)
	if pattern == "" {
		return "unmatched"
	}
	// Patterns carry their method, e.g. "POST /api/queue/{id}/call".
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
