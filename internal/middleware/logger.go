package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logger logs one line per request. Probe and scrape paths are logged at
// debug so they do not drown out the monitor's own output.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := newStatusRecorder(w)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			switch r.URL.Path {
			case "/metrics", "/healthz", "/readyz":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"bytes", ww.bytes,
				"duration", time.Since(start).String(),
			)
		})
	}
}
