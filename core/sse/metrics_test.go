package sse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/alltuner/vibetuner/core/sse"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	return totals
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	bus := newMemBus()
	svc := newTestService(t,
		sse.WithConnector(bus),
		sse.WithQueueSize(1),
		sse.WithMeterProvider(provider),
	)

	a, _ := svc.Registry().Subscribe("news")
	_, _ = svc.Registry().Subscribe("news")
	svc.Registry().Unsubscribe(a)

	require.NoError(t, svc.Broadcast(context.Background(), "news", sse.WithData("1")))
	require.NoError(t, svc.Broadcast(context.Background(), "news", sse.WithData("2")))

	bus.inject(svc.Bridge().Topic("news"), []byte(`not json`))
	require.Eventually(t, func() bool { return collect(t, reader)["sse.relay.malformed"] == 1 }, waitFor, tick)

	bus.down.Store(true)
	require.NoError(t, svc.Broadcast(context.Background(), "news", sse.WithData("3")))

	got := collect(t, reader)
	assert.Equal(t, int64(1), got["sse.subscribers"])
	assert.Equal(t, int64(1), got["sse.dispatch.delivered"])
	assert.Equal(t, int64(2), got["sse.dispatch.dropped"])
	assert.Equal(t, int64(2), got["sse.relay.published"])
	assert.Equal(t, int64(1), got["sse.relay.failures"])
}
