package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// defaultExportInterval is how often metrics are pushed to an OTLP collector.
const defaultExportInterval = 15 * time.Second

// TelemetryConfig controls how metrics are exported. Prometheus scraping is
// always on when Enabled; OTLP push is added when OtlpEndpoint is set.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	OtlpEndpoint   string
	OtlpInsecure   bool
	ExportInterval time.Duration
}

// Setup builds the meter provider behind the returned Recorder. The handler
// serves /metrics and is nil when telemetry is disabled.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Recorder, http.Handler, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return NewRecorder(), nil, noop, nil
	}

	readers, handler, err := metricReaders(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "jeoparty"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)

	instruments, err := newOtelInstruments(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nil, nil, err
	}
	return newRecorder(instruments), handler, provider.Shutdown, nil
}

// metricReaders returns the Prometheus pull reader with its scrape handler,
// followed by an OTLP push reader when an endpoint is configured.
func metricReaders(ctx context.Context, cfg TelemetryConfig) ([]sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()
	pull, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	readers := []sdkmetric.Reader{pull}
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	if cfg.OtlpEndpoint == "" {
		return readers, handler, nil
	}

	exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OtlpEndpoint)}
	if cfg.OtlpInsecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	push, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, err
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}
	readers = append(readers, sdkmetric.NewPeriodicReader(push, sdkmetric.WithInterval(interval)))
	return readers, handler, nil
}

type otelInstruments struct {
	ctx              context.Context
	requests         metric.Int64Counter
	requestLatencyMs metric.Float64Histogram
	events           metric.Int64Counter
	eventLatencyMs   metric.Float64Histogram
	buzzWindowMs     metric.Float64Histogram
	buzzWinners      metric.Int64Counter
	powerUpsUsed     metric.Int64Counter
}

func newOtelInstruments(provider metric.MeterProvider) (*otelInstruments, error) {
	meter := provider.Meter("jeoparty")

	requests, err := meter.Int64Counter("http_requests_total")
	if err != nil {
		return nil, err
	}
	requestLatency, err := meter.Float64Histogram("http_request_duration_ms")
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("game_events_total")
	if err != nil {
		return nil, err
	}
	eventLatency, err := meter.Float64Histogram("game_event_duration_ms")
	if err != nil {
		return nil, err
	}
	buzzWindow, err := meter.Float64Histogram("buzz_window_ms")
	if err != nil {
		return nil, err
	}
	buzzWinners, err := meter.Int64Counter("buzz_winners_total")
	if err != nil {
		return nil, err
	}
	powerUps, err := meter.Int64Counter("power_ups_used_total")
	if err != nil {
		return nil, err
	}

	return &otelInstruments{
		ctx:              context.Background(),
		requests:         requests,
		requestLatencyMs: requestLatency,
		events:           events,
		eventLatencyMs:   eventLatency,
		buzzWindowMs:     buzzWindow,
		buzzWinners:      buzzWinners,
		powerUpsUsed:     powerUps,
	}, nil
}

func (o *otelInstruments) recordHTTPRequest(method, path string, status int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMethod, method),
		attribute.String(AttrPath, path),
		attribute.Int(AttrStatus, status),
	}
	o.requests.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	o.requestLatencyMs.Record(o.ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (o *otelInstruments) recordEvent(event, result string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrEvent, event),
		attribute.String(AttrResult, result),
	}
	o.events.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	o.eventLatencyMs.Record(o.ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (o *otelInstruments) recordBuzzWindow(window time.Duration, winner bool) {
	o.buzzWindowMs.Record(o.ctx, float64(window.Milliseconds()))
	if winner {
		o.buzzWinners.Add(o.ctx, 1)
	}
}

func (o *otelInstruments) recordPowerUp(power string) {
	o.powerUpsUsed.Add(o.ctx, 1, metric.WithAttributes(attribute.String(AttrPower, power)))
}
