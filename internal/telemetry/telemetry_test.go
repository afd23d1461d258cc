package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false, ServiceName: "test"})
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()
	cause := errors.New("boom")

	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.HTTPClient(time.Second))

	assert.ErrorIs(t, tel.InstrumentTrack(ctx, func(context.Context) error { return cause }), cause)
	assert.NoError(t, tel.InstrumentDBOperation(ctx, "record", func(context.Context) error { return nil }))
	assert.NoError(t, tel.InstrumentPlaylistResolution(ctx, func(context.Context) error { return nil }))
	assert.ErrorIs(t, tel.InstrumentTokenRefresh(ctx, func(context.Context) error { return cause }), cause)

	assert.NotPanics(t, func() {
		tel.RecordBatch(ctx, "completed")
		tel.AddListeners(ctx, 1)
		tel.RecordSystemError(ctx, "server", "shutdown")
		tel.RecordHTTPRequest(ctx, http.MethodGet, "/", "2xx", time.Millisecond)
	})
}

func TestGetStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		302: "3xx",
		404: "4xx",
		409: "4xx",
		500: "5xx",
		100: "unknown",
	}

	for code, want := range tests {
		assert.Equal(t, want, getStatusClass(code), "status %d", code)
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := newStatusRecorder(rec)

	_, err := sr.Write([]byte("hello"))
	require.NoError(t, err)
	sr.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, sr.status)
	assert.Equal(t, int64(5), sr.bytesWritten)
	assert.Same(t, rec, sr.Unwrap())

	sr.Flush()
	assert.True(t, rec.Flushed)
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-1", seen)
	assert.Equal(t, "upstream-1", rec.Header().Get(RequestIDHeader))
}

func TestHTTPLogging_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			h := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/download", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))

			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "/download", entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
		})
	}
}

func TestHTTPMiddleware_DisabledPassThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(&Telemetry{}).Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRoutePattern(t *testing.T) {
	var pattern string

	r := chi.NewRouter()
	r.Get("/history/{id}", func(_ http.ResponseWriter, req *http.Request) {
		pattern = routePattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history/42", nil))
	assert.Equal(t, "/history/{id}", pattern)

	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}
