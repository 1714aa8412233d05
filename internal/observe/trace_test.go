package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestStartSpan(t *testing.T) {
	exp := installTracer(t)

	ctx, span := StartSpan(context.Background(), "dictation.stop")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex characters", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "dictation.stop" {
		t.Fatalf("spans = %v, want one named dictation.stop", spans)
	}
	if spans[0].SpanContext.TraceID().String() != cid {
		t.Error("correlation ID does not match the span's trace ID")
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span has trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "enhance")
	defer span.End()
	Logger(ctx).Info("traced")
	if !strings.Contains(buf.String(), `"trace_id":"`+CorrelationID(ctx)+`"`) {
		t.Errorf("log line missing trace_id: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "span_id") {
		t.Errorf("log line missing span_id: %s", buf.String())
	}
}
