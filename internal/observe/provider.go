package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// generationBuckets are histogram boundaries in seconds for provider calls.
// A speech request for a long meditation segment routinely takes tens of
// seconds, far beyond the SDK's default boundaries.
var generationBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120}

// connectBuckets are boundaries in seconds for live session handshakes.
var connectBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName defaults to "solace".
	ServiceName    string
	ServiceVersion string

	// TraceExporter receives finished spans. Nil keeps spans in-process only,
	// which is enough for correlation IDs in logs.
	TraceExporter sdktrace.SpanExporter

	// SampleRatio is the fraction of new traces to record when TraceExporter
	// is set. Zero means 1 (record everything).
	SampleRatio float64
}

// InitProvider installs global meter and tracer providers. Metrics are bridged
// to the Prometheus default registry so [Handler] can serve them.
//
// The returned function flushes and shuts both providers down.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "solace"
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(append(latencyViews(),
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)...)
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(traceOptions(res, cfg)...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		// Traces first so spans ending during shutdown still get exported.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// latencyViews assigns generation and handshake buckets to the duration
// instruments created by [NewMetrics].
func latencyViews() []sdkmetric.Option {
	view := func(name string, bounds []float64) sdkmetric.Option {
		return sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		))
	}
	return []sdkmetric.Option{
		view("solace.speech.duration", generationBuckets),
		view("solace.text.duration", generationBuckets),
		view("solace.live.connect.duration", connectBuckets),
	}
}

func traceOptions(res *resource.Resource, cfg ProviderConfig) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter == nil {
		return opts
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return append(opts,
		sdktrace.WithBatcher(cfg.TraceExporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}
