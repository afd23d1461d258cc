package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes stay low cardinality: operation, component and status only.
// Video ids, titles and playlist ids go to the logs, which carry the trace id.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation runs fn inside a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	span.SetAttributes(attribute.String("status", statusOf(err)))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.recordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentTrack instruments the fetch and transcode of one track.
func (t *Telemetry) InstrumentTrack(ctx context.Context, fn InstrumentedFunc) error {
	start := time.Now()

	t.addActiveTracks(ctx, 1)
	defer t.addActiveTracks(ctx, -1)

	err := t.InstrumentOperation(ctx, "convert_track", "queue", fn)

	t.RecordTrack(ctx, statusOf(err), time.Since(start))

	return err
}

// InstrumentPlaylistResolution instruments the playlist metadata calls.
func (t *Telemetry) InstrumentPlaylistResolution(ctx context.Context, fn InstrumentedFunc) error {
	err := t.InstrumentOperation(ctx, "resolve_playlist", "playlist", fn)

	t.recordPlaylistResolution(ctx, statusOf(err))

	return err
}

// InstrumentTokenRefresh instruments an OAuth refresh call.
func (t *Telemetry) InstrumentTokenRefresh(ctx context.Context, fn InstrumentedFunc) error {
	err := t.InstrumentOperation(ctx, "refresh_token", "auth", fn)

	t.recordTokenRefresh(ctx, statusOf(err))

	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
