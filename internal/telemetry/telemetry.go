// Package telemetry wires OpenTelemetry metrics for the inbox.
//
// Metrics are off by default; a no-op meter provider is installed and every
// instrument becomes free. With [telemetry] enabled, readers export to stdout
// or to an OTLP/HTTP collector.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/memohai/inboxd/internal/config"
)

const instrumentationScope = "github.com/memohai/inboxd"

// Provider owns the meter provider installed at start.
type Provider struct {
	meterProvider metric.MeterProvider
	shutdown      func(context.Context) error
}

// Init installs the global meter provider described by cfg.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceVersion string) (*Provider, error) {
	if !cfg.Enabled {
		mp := metricnoop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return &Provider{meterProvider: mp, shutdown: func(context.Context) error { return nil }}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("inboxd"),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	exporter, interval, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return &Provider{meterProvider: mp, shutdown: mp.Shutdown}, nil
}

func buildExporter(ctx context.Context, cfg config.TelemetryConfig) (sdkmetric.Exporter, time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "otlp":
		opts := []otlpmetrichttp.Option{}
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(endpoint))
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, 0, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		return exp, 30 * time.Second, nil
	case "", "stdout":
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, 0, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		return exp, 15 * time.Second, nil
	default:
		return nil, 0, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}
}

// Meter returns the inbox meter from the installed provider.
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(instrumentationScope)
	}
	return p.meterProvider.Meter(instrumentationScope)
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}
