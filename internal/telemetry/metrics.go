package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/eddits-console"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gateway metrics
	RequestsTotal      metric.Int64Counter
	RequestErrorsTotal metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	RetriesTotal       metric.Int64Counter

	// Refresh metrics
	RefreshTotal          metric.Int64Counter
	RefreshFailuresTotal  metric.Int64Counter
	RefreshCoalescedTotal metric.Int64Counter

	// Session lifecycle metrics
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
	LogoutsTotal       metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RequestsTotal, _ = meter.Int64Counter(
		"eddits.gateway.requests.total",
		metric.WithDescription("Total number of API requests sent through the gateway"),
		metric.WithUnit("{request}"),
	)

	m.RequestErrorsTotal, _ = meter.Int64Counter(
		"eddits.gateway.requests.errors.total",
		metric.WithDescription("Total number of API requests that failed, by category"),
		metric.WithUnit("{error}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"eddits.gateway.requests.duration",
		metric.WithDescription("Duration of API requests including any retry"),
		metric.WithUnit("ms"),
	)

	m.RetriesTotal, _ = meter.Int64Counter(
		"eddits.gateway.retries.total",
		metric.WithDescription("Total number of requests re-issued after a 401"),
		metric.WithUnit("{retry}"),
	)

	m.RefreshTotal, _ = meter.Int64Counter(
		"eddits.session.refresh.total",
		metric.WithDescription("Total number of refresh token exchanges sent to the backend"),
		metric.WithUnit("{exchange}"),
	)

	m.RefreshFailuresTotal, _ = meter.Int64Counter(
		"eddits.session.refresh.failures.total",
		metric.WithDescription("Total number of refresh token exchanges that failed"),
		metric.WithUnit("{exchange}"),
	)

	m.RefreshCoalescedTotal, _ = meter.Int64Counter(
		"eddits.session.refresh.coalesced.total",
		metric.WithDescription("Total number of refresh callers that shared another caller's exchange"),
		metric.WithUnit("{call}"),
	)

	m.LoginsTotal, _ = meter.Int64Counter(
		"eddits.session.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"eddits.session.logins.failures.total",
		metric.WithDescription("Total number of rejected logins"),
		metric.WithUnit("{login}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"eddits.session.logouts.total",
		metric.WithDescription("Total number of session teardowns, explicit or after a failed refresh"),
		metric.WithUnit("{logout}"),
	)

	return m
}
