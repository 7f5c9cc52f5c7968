package telemetry

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestMeterProvider is an in-memory meter provider for tests.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider

	reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a meter provider backed by a manual reader.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Collect gathers everything recorded so far.
func (p *TestMeterProvider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := p.reader.Collect(ctx, &rm)
	return rm, err
}

// CounterValue returns the summed value of an Int64Counter by name, or 0
// if nothing was recorded under that name.
func (p *TestMeterProvider) CounterValue(ctx context.Context, name string) int64 {
	rm, err := p.Collect(ctx)
	if err != nil {
		return 0
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
