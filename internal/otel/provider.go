// Package otel builds the OpenTelemetry log and meter providers used by the
// logging bridge and the instrumented components.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoOutput is returned when OTel is enabled without any exporter.
var ErrNoOutput = errors.New("otel enabled but no writer or endpoint configured")

type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	// LogWriter receives pretty-printed log records.
	LogWriter io.Writer
	// MetricWriter receives periodic metric dumps. Nil disables metrics.
	MetricWriter io.Writer
	// MetricInterval between metric exports. Zero uses the SDK default.
	MetricInterval time.Duration
	// Endpoint of an OTLP/HTTP collector for logs. Optional.
	Endpoint string
	Insecure bool
}

// Provider holds whichever providers the config turned on.
type Provider struct {
	enabled bool
	logs    *sdklog.LoggerProvider
	metrics *sdkmetric.MeterProvider
}

// New builds the providers. A disabled config yields an empty Provider whose
// methods are all safe no-ops.
func New(cfg Config) (*Provider, error) {
	p := &Provider{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exporters, err := logExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 && cfg.MetricWriter == nil {
		return nil, ErrNoOutput
	}

	if len(exporters) > 0 {
		opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
		for _, exp := range exporters {
			opts = append(opts, sdklog.WithProcessor(
				sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
		}
		p.logs = sdklog.NewLoggerProvider(opts...)
	}

	if cfg.MetricWriter != nil {
		reader, err := metricReader(cfg)
		if err != nil {
			return nil, err
		}
		p.metrics = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	}
	return p, nil
}

func logExporters(ctx context.Context, cfg Config) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("file log exporter: %w", err)
		}
		out = append(out, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp log exporter: %w", err)
		}
		out = append(out, exp)
	}
	return out, nil
}

func metricReader(cfg Config) (sdkmetric.Reader, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.MetricWriter), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	var opts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	return sdkmetric.NewPeriodicReader(exp, opts...), nil
}

// LoggerProvider is nil unless log export is on.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider { return p.logs }

// MeterProvider is nil unless metrics are on.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider { return p.metrics }

// Meter falls back to a no-op meter when metrics are off.
func (p *Provider) Meter(name string) metric.Meter {
	if p.metrics == nil {
		return noop.Meter{}
	}
	return p.metrics.Meter(name)
}

// Flush forces an export of pending logs and metrics.
func (p *Provider) Flush(ctx context.Context) error {
	return p.both(ctx, "flush", p.logs.ForceFlush, p.metrics.ForceFlush)
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.both(ctx, "shutdown", p.logs.Shutdown, p.metrics.Shutdown)
}

func (p *Provider) both(ctx context.Context, op string, logs, metrics func(context.Context) error) error {
	var errs []error
	if p.logs != nil {
		if err := logs(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log %s: %w", op, err))
		}
	}
	if p.metrics != nil {
		if err := metrics(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric %s: %w", op, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Enabled() bool { return p.enabled }
