package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "analytics-transport"

// Metrics holds the delivery metrics:
// - Latency: how long a Post takes, backoff included
// - Traffic: posts, attempts and records sent
// - Errors: posts ending with a remote error or the connection-error sentinel
type Metrics struct {
	PostDuration  metric.Float64Histogram
	PostsTotal    metric.Int64Counter
	RecordsTotal  metric.Int64Counter
	AttemptsTotal metric.Int64Counter
	RetriesTotal  metric.Int64Counter
}

// NewMetrics creates the metrics behind a Prometheus exporter and returns the
// handler serving them.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := NewMetricsFromProvider(provider)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// NewMetricsFromProvider registers the instruments on an existing provider.
func NewMetricsFromProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}

	var err error
	m.PostDuration, err = meter.Float64Histogram(
		"transport_post_duration_seconds",
		metric.WithDescription("Time spent delivering one batch, retries and backoff included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	m.PostsTotal, err = meter.Int64Counter(
		"transport_posts_total",
		metric.WithDescription("Total number of batches posted, by final status"),
	)
	if err != nil {
		return nil, err
	}

	m.RecordsTotal, err = meter.Int64Counter(
		"transport_records_total",
		metric.WithDescription("Total number of records handed to the transport"),
	)
	if err != nil {
		return nil, err
	}

	m.AttemptsTotal, err = meter.Int64Counter(
		"transport_attempts_total",
		metric.WithDescription("Total number of delivery attempts, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.RetriesTotal, err = meter.Int64Counter(
		"transport_retries_total",
		metric.WithDescription("Total number of backoff sleeps before a retry"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPost records the final result of one Post call.
func (m *Metrics) RecordPost(ctx context.Context, status int, stubbed bool, records int, durationSeconds float64) {
	attrs := metric.WithAttributes(statusAttr(status), stubbedAttr(stubbed))
	m.PostsTotal.Add(ctx, 1, attrs)
	m.PostDuration.Record(ctx, durationSeconds, attrs)
	m.RecordsTotal.Add(ctx, int64(records), metric.WithAttributes(stubbedAttr(stubbed)))
}

// RecordAttempt records one delivery attempt and how it was classified.
func (m *Metrics) RecordAttempt(ctx context.Context, outcome string) {
	m.AttemptsTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordRetry records a backoff before another attempt.
func (m *Metrics) RecordRetry(ctx context.Context) {
	m.RetriesTotal.Add(ctx, 1)
}
