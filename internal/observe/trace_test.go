package observe

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_TagsLoggerAndCorrelationID(t *testing.T) {
	exp := withTracing(t)
	buf := captureLogs(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q", got)
	}

	ctx, span := StartSpan(context.Background(), "playback.session")
	cid := CorrelationID(ctx)
	Logger(ctx).Info("chime scheduled")
	span.End()

	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("CorrelationID = %q, want 32 lowercase hex chars", cid)
	}
	out := buf.String()
	if !strings.Contains(out, "trace_id="+cid) || !strings.Contains(out, "span_id=") {
		t.Errorf("log line lacks trace context: %s", out)
	}
	if spans := exp.GetSpans(); len(spans) != 1 || spans[0].Name != "playback.session" {
		t.Errorf("spans = %v", spans)
	}
}

func TestLogger_WithoutSpanIsDefault(t *testing.T) {
	buf := captureLogs(t)
	Logger(context.Background()).Info("idle")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id: %s", buf.String())
	}
}

func TestLatencyViews_UseGenerationBuckets(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(append(latencyViews(), sdkmetric.WithReader(reader))...)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.SpeechDuration.Record(ctx, 42)
	m.LiveConnectDuration.Record(ctx, 0.3)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	rm := collect(t, reader)
	bounds := func(name string) []float64 {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not recorded", name)
		}
		return met.Data.(metricdata.Histogram[float64]).DataPoints[0].Bounds
	}
	if got := bounds("solace.speech.duration"); !slices.Equal(got, generationBuckets) {
		t.Errorf("speech bounds = %v", got)
	}
	if got := bounds("solace.live.connect.duration"); !slices.Equal(got, connectBuckets) {
		t.Errorf("connect bounds = %v", got)
	}
	if got := bounds("solace.http.request.duration"); slices.Equal(got, generationBuckets) {
		t.Error("http latency picked up generation buckets")
	}
}

func TestTraceOptions_Sampling(t *testing.T) {
	t.Parallel()
	res := resource.Empty()

	if n := len(traceOptions(res, ProviderConfig{})); n != 1 {
		t.Errorf("options without exporter = %d, want resource only", n)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(traceOptions(res, ProviderConfig{TraceExporter: exp, SampleRatio: -3})...)
	_, span := tp.Tracer("t").Start(context.Background(), "x")
	if !span.SpanContext().IsSampled() {
		t.Error("out-of-range ratio should sample everything")
	}
	span.End()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if len(exp.GetSpans()) != 1 {
		t.Errorf("exported %d spans, want 1", len(exp.GetSpans()))
	}
}
