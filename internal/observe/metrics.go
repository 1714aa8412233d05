// Package observe provides the observability primitives shared by the web
// tier and the dictation client: OpenTelemetry metrics exported through
// Prometheus, tracing, trace-aware logging, and HTTP middleware.
//
// A package-level [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/codiris/voice"

// Session outcomes recorded by [Metrics.RecordSession].
const (
	OutcomeDelivered = "delivered"
	OutcomeNoSpeech  = "no_speech"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds all OpenTelemetry instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// STTDuration tracks the time from stop to final transcript.
	STTDuration metric.Float64Histogram

	// EnhanceDuration tracks enhancement latency, including fallbacks. Use
	// with attributes mode and outcome.
	EnhanceDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// Sessions counts finished dictation sessions by outcome.
	Sessions metric.Int64Counter

	// ActiveSessions tracks sessions between Start and their terminal state.
	ActiveSessions metric.Int64UpDownCounter

	// EnhanceFallbacks counts enhancements that returned the transcript
	// unchanged, by reason.
	EnhanceFallbacks metric.Int64Counter

	// WebhookEvents counts verified billing webhook events by type.
	WebhookEvents metric.Int64Counter

	// WaitlistSignups counts waitlist registrations by platform.
	WaitlistSignups metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds sized for remote API
// round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.STTDuration, err = histogram("codiris.stt.duration", "Time from stop to final transcript."); err != nil {
		return nil, err
	}
	if met.EnhanceDuration, err = histogram("codiris.enhance.duration", "Latency of transcript enhancement."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("codiris.tts.duration", "Latency of speech synthesis."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("codiris.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("codiris.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("codiris.sessions",
		metric.WithDescription("Finished dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("codiris.active_sessions",
		metric.WithDescription("Dictation sessions currently recording or processing."),
	); err != nil {
		return nil, err
	}
	if met.EnhanceFallbacks, err = m.Int64Counter("codiris.enhance.fallbacks",
		metric.WithDescription("Enhancements that returned the original transcript, by reason."),
	); err != nil {
		return nil, err
	}
	if met.WebhookEvents, err = m.Int64Counter("codiris.billing.webhook_events",
		metric.WithDescription("Verified billing webhook events by type."),
	); err != nil {
		return nil, err
	}
	if met.WaitlistSignups, err = m.Int64Counter("codiris.waitlist.signups",
		metric.WithDescription("Waitlist registrations by platform."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("codiris.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// from [otel.GetMeterProvider] on first use. Call it after [InitProvider] so
// the instruments bind to the Prometheus exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status),
	))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind),
	))
}

// RecordSession counts one finished dictation session.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordEnhanceFallback counts one enhancement that fell back to the input.
func (m *Metrics) RecordEnhanceFallback(ctx context.Context, mode, reason string) {
	m.EnhanceFallbacks.Add(ctx, 1, metric.WithAttributes(
		Attr("mode", mode), Attr("reason", reason),
	))
}

// RecordWebhookEvent counts one verified webhook event.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType string) {
	m.WebhookEvents.Add(ctx, 1, metric.WithAttributes(Attr("type", eventType)))
}

// RecordWaitlistSignup counts one waitlist registration.
func (m *Metrics) RecordWaitlistSignup(ctx context.Context, platform string) {
	m.WaitlistSignups.Add(ctx, 1, metric.WithAttributes(Attr("platform", platform)))
}
