package telemetry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/logctx"
)

// HTTPLogging logs each request once it completes: 5xx at ERROR, 4xx at WARN, the rest at INFO.
// The request id is added by the logctx handler.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logctx.LoggerFromContext(ctx)
		start := time.Now()

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo

		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, "http request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
