// Package observe wires OpenTelemetry into Solace: the metric instruments,
// a tracer whose trace IDs double as log correlation IDs, and the HTTP
// endpoint serving Prometheus scrapes and health probes.
//
// Tests build their own [Metrics] with [NewMetrics] over a manual reader;
// production code shares [DefaultMetrics].
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/solace"

// Metrics holds the instruments recorded across Solace. Create one with
// [NewMetrics] or use [DefaultMetrics].
type Metrics struct {
	// Provider call latency in seconds, attribute "provider".
	SpeechDuration      metric.Float64Histogram
	TextDuration        metric.Float64Histogram
	LiveConnectDuration metric.Float64Histogram

	// ProviderRequests has attributes provider, kind and status (ok, error).
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// PlaybackSessions counts ended sessions by reason: completed, stopped
	// or faded.
	PlaybackSessions metric.Int64Counter

	// Chunks counts inbound live audio by status: scheduled or dropped.
	Chunks metric.Int64Counter
	Turns  metric.Int64Counter

	// DecodeErrors counts codec rejections by kind.
	DecodeErrors metric.Int64Counter

	ActivePlayback      metric.Int64UpDownCounter
	ActiveConversations metric.Int64UpDownCounter
	ActiveSoundscapes   metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates every instrument on mp. Bucket boundaries for the
// provider latencies come from the views installed by [InitProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var errs []error
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = append(errs, err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	active := func(name, desc string) metric.Int64UpDownCounter {
		g, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return g
	}

	met := &Metrics{
		SpeechDuration:      seconds("solace.speech.duration", "Speech synthesis latency."),
		TextDuration:        seconds("solace.text.duration", "Script generation latency."),
		LiveConnectDuration: seconds("solace.live.connect.duration", "Live session handshake latency."),

		ProviderRequests: counter("solace.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   counter("solace.provider.errors", "Failed provider calls by provider and kind."),
		PlaybackSessions: counter("solace.playback.sessions", "Ended playback sessions by reason."),
		Chunks:           counter("solace.live.chunks", "Inbound live audio chunks by status."),
		Turns:            counter("solace.live.turns", "Finalized transcript entries by speaker."),
		DecodeErrors:     counter("solace.codec.errors", "Audio payloads rejected by the codec, by kind."),

		ActivePlayback:      active("solace.active_playback", "Playback sessions that have not ended."),
		ActiveConversations: active("solace.active_conversations", "Open live conversations."),
		ActiveSoundscapes:   active("solace.active_soundscapes", "Looping ambient soundscapes."),

		HTTPRequestDuration: seconds("solace.http.request.duration", "Metrics endpoint latency by method and route."),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns metrics on the global meter provider, built once.
// Call [InitProvider] first or the instruments are no-ops.
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

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordPlaybackEnded counts one finished playback session.
func (m *Metrics) RecordPlaybackEnded(ctx context.Context, reason string) {
	m.PlaybackSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordChunk counts one inbound live audio chunk.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.Chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTurn counts one finalized transcript entry.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

// RecordDecodeError counts one rejected audio payload.
func (m *Metrics) RecordDecodeError(ctx context.Context, kind string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ObserveDuration records the time since start on h.
func ObserveDuration(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
