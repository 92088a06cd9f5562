package telemetry

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Telemetry owns the process meter provider and its scrape handler.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// Setup installs a global meter provider exporting through Prometheus.
// When disabled the global no-op provider stays in place and Handler
// reports 404.
func Setup(enabled bool, serviceName string, logger *log.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = log.Default()
	}
	if !enabled {
		logger.Debug("metrics disabled")
		return &Telemetry{handler: http.NotFoundHandler()}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", "err", err)
		return &Telemetry{handler: http.NotFoundHandler()}, nil
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	logger.Info("telemetry initialized", "exporter", "prometheus")

	return &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the Prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	var errs []error
	if err := t.provider.ForceFlush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
