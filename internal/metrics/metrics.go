// Package metrics sets up the OTEL meter provider and its exporters.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// MetricProvider is the installed meter provider.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// Exporter bundles the meter provider with the prometheus registry it
// scrapes from.
type Exporter struct {
	MetricProvider
	registry *prometheus.Registry
}

// Handler serves the prometheus registry, or 404 when prometheus is off.
func (e *Exporter) Handler() http.Handler {
	if e.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// NewMetricProvider builds a meter provider from the configured readers and
// installs it globally.
func NewMetricProvider(ctx context.Context, options ...OptionFn) (*Exporter, error) {
	var cfg Config
	for _, opt := range options {
		cfg = opt(cfg)
	}

	exp := &Exporter{}
	var opts []sdkmetric.Option

	for _, provider := range cfg.Provider {
		switch provider.Provider {
		case PrometheusProvider:
			exp.registry = prometheus.NewRegistry()
			reader, err := otelprom.New(otelprom.WithRegisterer(exp.registry))
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}
			opts = append(opts, sdkmetric.WithReader(reader))
		case OtelCollector:
			grpcOpts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(provider.Endpoint),
				otlpmetricgrpc.WithHeaders(provider.Headers),
			}
			if provider.Insecure {
				grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
			}
			otlp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
			if err != nil {
				return nil, fmt.Errorf("otlp metric exporter: %w", err)
			}
			opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlp)))
		default:
			return nil, fmt.Errorf("unknown metric provider %q", provider.Provider)
		}
	}

	if cfg.ServiceName != "" {
		opts = append(opts, sdkmetric.WithResource(
			resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	exp.MetricProvider = mp
	return exp, nil
}
