package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Audit records a security-relevant state change made by the request: one
// "audit" log line plus an audit.events increment.
func Audit(r *http.Request, event string, attrs ...any) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	line := make([]any, 0, 10+len(attrs))
	line = append(line,
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID,
		"remote_addr", r.RemoteAddr,
	)
	line = append(line, attrs...)
	slog.InfoContext(ctx, "audit", line...)

	if m := current(); m != nil {
		m.auditEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}
