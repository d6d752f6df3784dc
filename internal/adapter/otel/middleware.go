package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/missioncontrol/internal/logger"
)

// untraced paths are polled or long-lived and would drown the API spans.
var untraced = map[string]bool{
	"/health": true,
	"/api/ws": true,
}

// HTTPMiddleware traces API requests. Spans are named after the matched
// chi route, so /api/agents/{id} stays one span name, and carry the
// request ID set by the request ID middleware.
func HTTPMiddleware(serviceName string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool { return !untraced[r.URL.Path] }),
	}, opts...)

	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			span := trace.SpanFromContext(r.Context())
			if id := logger.RequestID(r.Context()); id != "" {
				span.SetAttributes(attribute.String("missioncontrol.request_id", id))
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}
		})
		return otelhttp.NewHandler(routed, serviceName, opts...)
	}
}
