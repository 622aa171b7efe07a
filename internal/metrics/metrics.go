package metrics

import (
	"context"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests     metric.Int64Counter
	HTTPDuration     metric.Float64Histogram
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
	Projections      metric.Int64Counter
	PollRuns         metric.Int64Counter
	CountdownStreams metric.Int64UpDownCounter
}

// Setup registers the meter provider globally and exposes it on the default
// Prometheus registry.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	m, provider, err := build(serviceName, prom.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(provider)
	return m, promhttp.Handler(), nil
}

// NewWithRegistry builds metrics on a private registry. Used by tests.
func NewWithRegistry(serviceName string, reg *prom.Registry) (*Metrics, http.Handler, error) {
	m, _, err := build(serviceName, reg)
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func build(serviceName string, reg prom.Registerer) (*Metrics, *sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"eco_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"eco_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"eco_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"eco_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Projections, err = meter.Int64Counter(
		"eco_projections_total",
		metric.WithDescription("Reward projections by action and whether the APR was computable"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollRuns, err = meter.Int64Counter(
		"eco_pool_polls_total",
		metric.WithDescription("Pool aggregate refreshes by pool and status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CountdownStreams, err = meter.Int64UpDownCounter(
		"eco_countdown_streams",
		metric.WithDescription("Number of open unlock countdown streams"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, provider, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordProjection(ctx context.Context, action string, computable bool) {
	m.Projections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("computable", computable),
	))
}

func (m *Metrics) RecordPoll(ctx context.Context, poolID string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PollRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", poolID),
		attribute.String("status", status),
	))
}

func (m *Metrics) IncrementStreams(ctx context.Context) {
	m.CountdownStreams.Add(ctx, 1)
}

func (m *Metrics) DecrementStreams(ctx context.Context) {
	m.CountdownStreams.Add(ctx, -1)
}
