package sse

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/alltuner/vibetuner/core/sse"

// metrics holds the instruments shared by the registry and the relay bridge.
// A nil *metrics is valid and records nothing.
type metrics struct {
	delivered   metric.Int64Counter
	dropped     metric.Int64Counter
	subscribers metric.Int64UpDownCounter
	published   metric.Int64Counter
	failures    metric.Int64Counter
	malformed   metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &metrics{}
	m.delivered, _ = meter.Int64Counter("sse.dispatch.delivered",
		metric.WithDescription("Events enqueued to local subscribers"),
		metric.WithUnit("{event}"))
	m.dropped, _ = meter.Int64Counter("sse.dispatch.dropped",
		metric.WithDescription("Events dropped because a subscriber queue was full"),
		metric.WithUnit("{event}"))
	m.subscribers, _ = meter.Int64UpDownCounter("sse.subscribers",
		metric.WithDescription("Open local subscribers"),
		metric.WithUnit("{subscriber}"))
	m.published, _ = meter.Int64Counter("sse.relay.published",
		metric.WithDescription("Events published to the relay bus"),
		metric.WithUnit("{event}"))
	m.failures, _ = meter.Int64Counter("sse.relay.failures",
		metric.WithDescription("Failed relay operations"),
		metric.WithUnit("{error}"))
	m.malformed, _ = meter.Int64Counter("sse.relay.malformed",
		metric.WithDescription("Inbound relay messages skipped as malformed"),
		metric.WithUnit("{message}"))
	return m
}

func (m *metrics) addDelivered(ctx context.Context, channel string, n int) {
	if m == nil || m.delivered == nil || n == 0 {
		return
	}
	m.delivered.Add(ctx, int64(n), metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *metrics) addDropped(ctx context.Context, channel string, n int) {
	if m == nil || m.dropped == nil || n == 0 {
		return
	}
	m.dropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *metrics) addSubscribers(ctx context.Context, n int64) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Add(ctx, n)
}

func (m *metrics) addPublished(ctx context.Context) {
	if m == nil || m.published == nil {
		return
	}
	m.published.Add(ctx, 1)
}

func (m *metrics) addFailure(ctx context.Context, op string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *metrics) addMalformed(ctx context.Context) {
	if m == nil || m.malformed == nil {
		return
	}
	m.malformed.Add(ctx, 1)
}
