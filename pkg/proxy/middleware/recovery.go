package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"nexus-hq/nexus/pkg/proxy/types"
)

// RecoveryMiddleware recovers from handler panics and returns a 500 in the
// gateway's JSON error format without exposing internals to the client.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				body := types.NewErrorResponse(
					"An internal error occurred. Please try again later.",
					"operation",
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(body)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
