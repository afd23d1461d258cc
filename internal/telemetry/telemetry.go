package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const otlpExportInterval = 30 * time.Second

// Telemetry holds all telemetry instruments and providers. A zero or nil Telemetry is
// valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Downloads
	tracksTotal         metric.Int64Counter
	tracksActive        metric.Int64UpDownCounter
	trackDuration       metric.Float64Histogram
	batchesTotal        metric.Int64Counter
	playlistResolutions metric.Int64Counter
	tokenRefreshes      metric.Int64Counter
	sseListeners        metric.Int64UpDownCounter
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram
	systemErrors        metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint enables an additional OTLP gRPC metric push when set.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(otlpExportInterval)),
		))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; they give log lines a trace_id/span_id to correlate on.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	return t, nil
}

// Enabled reports whether metrics are being collected.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meterProvider != nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("")
	}

	return t.tracer
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// HTTPClient returns a client whose transport records outgoing request spans.
func (t *Telemetry) HTTPClient(timeout time.Duration) *http.Client {
	if !t.Enabled() {
		return &http.Client{Timeout: timeout}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	return errors.Join(
		t.meterProvider.Shutdown(ctx),
		t.tracerProvider.Shutdown(ctx),
	)
}

func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

func (t *Telemetry) addInFlight(ctx context.Context, delta int64) {
	if t == nil || t.httpRequestsInFlight == nil {
		return
	}

	t.httpRequestsInFlight.Add(ctx, delta)
}

// RecordTrack records the outcome of a single track conversion.
func (t *Telemetry) RecordTrack(ctx context.Context, status string, duration time.Duration) {
	if t == nil || t.tracksTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.tracksTotal.Add(ctx, 1, attrs)
	t.trackDuration.Record(ctx, duration.Seconds(), attrs)
}

func (t *Telemetry) addActiveTracks(ctx context.Context, delta int64) {
	if t == nil || t.tracksActive == nil {
		return
	}

	t.tracksActive.Add(ctx, delta)
}

// RecordBatch counts finished batches by status (completed, partial, cancelled).
func (t *Telemetry) RecordBatch(ctx context.Context, status string) {
	if t == nil || t.batchesTotal == nil {
		return
	}

	t.batchesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (t *Telemetry) recordPlaylistResolution(ctx context.Context, status string) {
	if t == nil || t.playlistResolutions == nil {
		return
	}

	t.playlistResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (t *Telemetry) recordTokenRefresh(ctx context.Context, status string) {
	if t == nil || t.tokenRefreshes == nil {
		return
	}

	t.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// AddListeners tracks connected progress listeners.
func (t *Telemetry) AddListeners(ctx context.Context, delta int64) {
	if t == nil || t.sseListeners == nil {
		return
	}

	t.sseListeners.Add(ctx, delta)
}

func (t *Telemetry) recordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("error_type", errorType),
	))
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&t.tracksTotal, "tracks_total", "Total number of processed tracks"},
		{&t.batchesTotal, "batches_total", "Total number of processed batches"},
		{&t.playlistResolutions, "playlist_resolutions_total", "Total number of playlist resolutions"},
		{&t.tokenRefreshes, "token_refreshes_total", "Total number of OAuth token refreshes"},
		{&t.dbOperationsTotal, "db_operations_total", "Total number of database operations"},
		{&t.systemErrors, "system_errors_total", "Total number of system errors"},
	}

	for _, c := range counters {
		*c.dst, err = t.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	upDown := []struct {
		dst  *metric.Int64UpDownCounter
		name string
		desc string
	}{
		{&t.httpRequestsInFlight, "http_requests_in_flight", "Number of HTTP requests currently being processed"},
		{&t.tracksActive, "tracks_active", "Number of tracks currently being converted"},
		{&t.sseListeners, "progress_listeners", "Number of connected progress listeners"},
	}

	for _, c := range upDown {
		*c.dst, err = t.meter.Int64UpDownCounter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&t.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&t.trackDuration, "track_duration_seconds", "Fetch and transcode duration per track in seconds"},
		{&t.dbOperationDuration, "db_operation_duration_seconds", "Database operation duration in seconds"},
	}

	for _, h := range histograms {
		*h.dst, err = t.meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s"))
		if err != nil {
			return fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return nil
}
