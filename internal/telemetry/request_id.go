package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses an upstream X-Request-ID or generates one, echoes it in the
// response and stores it in the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := logctx.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
