package telemetry

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(config.TelemetryConfig{Enabled: false}, "test", nil)
	require.NoError(t, err)

	assert.Empty(t, tel.Addr())
	assert.Nil(t, tel.Handler())
	tel.Serve()
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewServesMetrics(t *testing.T) {
	tel, err := New(config.TelemetryConfig{Enabled: true, MetricsPort: 0}, "test", nil)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, tel.Shutdown(ctx))
	}()

	require.NotEmpty(t, tel.Addr())
	tel.Serve()

	counter, err := otel.Meter("telemetry_test").Int64Counter("remedyd.test.events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	resp, err := http.Get("http://" + tel.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "remedyd_test_events")
}

func TestTestMeterProviderCounterValue(t *testing.T) {
	mp := NewTestMeterProvider()
	ctx := context.Background()

	counter, err := mp.Meter("telemetry_test").Int64Counter("cycles")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	counter.Add(ctx, 1)

	assert.Equal(t, int64(3), mp.CounterValue(ctx, "cycles"))
	assert.Equal(t, int64(0), mp.CounterValue(ctx, "missing"))
}

func TestShutdownNilReceiver(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
