package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point whose attributes
// contain every key/value in want.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			v, ok := dp.Attributes.Value(kv.Key)
			if !ok || v.Emit() != kv.Value.Emit() {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %v", name, want)
	return 0
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"codiris.stt.duration", m.STTDuration},
		{"codiris.enhance.duration", m.EnhanceDuration},
		{"codiris.tts.duration", m.TTSDuration},
		{"codiris.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.2)
		tc.h.Record(ctx, 1.7)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
				t.Errorf("data points = %+v, want one point with count 2", hist.DataPoints)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
	m.RecordProviderRequest(ctx, "deepgram", "stt", "error")
	m.RecordProviderError(ctx, "deepgram", "stt")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "codiris.provider.requests", Attr("status", "ok")); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "codiris.provider.requests", Attr("status", "error")); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := sumFor(t, rm, "codiris.provider.errors", Attr("provider", "deepgram")); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestSessionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.RecordSession(ctx, OutcomeDelivered)
	m.RecordSession(ctx, OutcomeNoSpeech)
	m.RecordSession(ctx, OutcomeDelivered)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "codiris.active_sessions"); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	if got := sumFor(t, rm, "codiris.sessions", Attr("outcome", OutcomeDelivered)); got != 2 {
		t.Errorf("delivered = %d, want 2", got)
	}
	if got := sumFor(t, rm, "codiris.sessions", Attr("outcome", OutcomeNoSpeech)); got != 1 {
		t.Errorf("no_speech = %d, want 1", got)
	}
}

func TestBusinessCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEnhanceFallback(ctx, "email", "no_key")
	m.RecordWebhookEvent(ctx, "checkout.session.completed")
	m.RecordWaitlistSignup(ctx, "windows")
	m.RecordWaitlistSignup(ctx, "windows")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "codiris.enhance.fallbacks", Attr("mode", "email"), Attr("reason", "no_key")); got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
	if got := sumFor(t, rm, "codiris.billing.webhook_events", Attr("type", "checkout.session.completed")); got != 1 {
		t.Errorf("webhook events = %d, want 1", got)
	}
	if got := sumFor(t, rm, "codiris.waitlist.signups", Attr("platform", "windows")); got != 2 {
		t.Errorf("signups = %d, want 2", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a, b := DefaultMetrics(), DefaultMetrics()
	if a == nil || a != b {
		t.Errorf("DefaultMetrics() = %p, %p; want the same non-nil instance", a, b)
	}
}
