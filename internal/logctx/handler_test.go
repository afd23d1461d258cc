package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{})))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())

	return entry
}

func TestContextHandler_PlainContext(t *testing.T) {
	var buf bytes.Buffer

	newTestLogger(&buf).InfoContext(context.Background(), "track downloaded", "video_id", "abc")

	entry := decodeEntry(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
	assert.Equal(t, "track downloaded", entry["msg"])
	assert.Equal(t, "abc", entry["video_id"])
}

func TestContextHandler_SpanContext(t *testing.T) {
	var buf bytes.Buffer

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	newTestLogger(&buf).InfoContext(ctx, "resolving playlist")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestContextHandler_RequestID(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithRequestID(context.Background(), "req-42")
	newTestLogger(&buf).WarnContext(ctx, "login required")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestContextHandler_Enabled(t *testing.T) {
	h := NewContextHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	h := NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "queue")})
	require.IsType(t, &ContextHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("item")
	require.IsType(t, &ContextHandler{}, withGroup)

	slog.New(withGroup).InfoContext(context.Background(), "event", "index", 1)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"component":"queue"`), out)
	assert.True(t, strings.Contains(out, `"item":{"index":1}`), out)
}

func TestNewContextHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewContextHandler(nil) })
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, logger, LoggerFromContext(WithLogger(context.Background(), logger)))
}
