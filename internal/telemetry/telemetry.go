// Package telemetry wires the OpenTelemetry metrics pipeline to a local
// Prometheus scrape endpoint.
//
// The controller records its counters through the global otel meter; this
// package installs the meter provider behind it and serves /metrics. When
// telemetry is disabled New returns a no-op instance, so callers never
// branch on whether metrics are on.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

const serviceName = "remedyd"

// Telemetry owns the meter provider and the metrics HTTP endpoint.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	server        *http.Server
	listener      net.Listener
	logger        *zap.Logger
}

// New builds the metrics pipeline. With cfg.Enabled false it returns a
// no-op instance whose Shutdown is safe to call. The listener is opened
// here so a bad port fails at startup, not mid-run.
func New(cfg config.TelemetryConfig, version string, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Telemetry{logger: logger}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.MetricsPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Telemetry{
		meterProvider: mp,
		registry:      registry,
		listener:      listener,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("telemetry"),
	}, nil
}

// Serve starts the metrics endpoint in the background. No-op when
// telemetry is disabled.
func (t *Telemetry) Serve() {
	if t.server == nil {
		return
	}
	t.logger.Info("metrics endpoint listening", zap.String("addr", t.Addr()))
	go func() {
		if err := t.server.Serve(t.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// Addr returns the bound metrics address, empty when disabled.
func (t *Telemetry) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Handler returns the metrics HTTP handler, nil when disabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown stops the endpoint and flushes the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
