package middleware

import (
	"log/slog"
	"net/http"

	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id, session_id, user_id, trace_id, and span_id, then stores
// it in context via logger.NewContext.
//
// Mount it after RequestLogging, Tracing and the session middleware so that
// every field is already present in the request context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
