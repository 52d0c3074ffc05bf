package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Call runs fn inside a span named "<kind>.<provider>" and records the
// request counter, the latency on h, and on failure the error counter. The
// error returned by fn is passed through unchanged.
func (m *Metrics) Call(ctx context.Context, provider, kind string, h metric.Float64Histogram, fn func(ctx context.Context) error) error {
	ctx, span := StartSpan(ctx, kind+"."+provider,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	ObserveDuration(ctx, h, start, attribute.String("provider", provider))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
		Logger(ctx).Warn("provider call failed", "provider", provider, "kind", kind, "err", err)
		return err
	}
	m.RecordProviderRequest(ctx, provider, kind, "ok")
	return nil
}
