// Package tracing sets up OpenTelemetry export for costlens runs.
package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/moolen/costlens"

// Provider owns the OTLP tracer provider and implements lifecycle.Component.
// A disabled Provider leaves the global no-op provider in place.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	logger         *logging.Logger
	enabled        bool
}

// NewProvider creates the exporter and installs the global tracer provider
func NewProvider(cfg config.TracingConfig, version string) (*Provider, error) {
	logger := logging.GetLogger("tracing")

	if !cfg.Enabled {
		logger.Debug("Tracing disabled")
		return &Provider{logger: logger}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tracing enabled but endpoint not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	otlpOptions, err := exporterOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlpOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("costlens"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	logger.Info("Tracing initialized with endpoint: %s", cfg.Endpoint)

	return &Provider{
		tracerProvider: tracerProvider,
		logger:         logger,
		enabled:        true,
	}, nil
}

// exporterOptions picks TLS with a CA, TLS without verification, or plaintext
func exporterOptions(cfg config.TracingConfig, logger *logging.Logger) ([]otlptracegrpc.Option, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}

	switch {
	case cfg.TLSInsecure:
		creds := credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in via tracing.tlsInsecure
			MinVersion:         tls.VersionTLS12,
		})
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)))
		logger.Warn("TLS enabled for tracing with certificate verification disabled")

	case cfg.TLSCAPath != "":
		caCert, err := os.ReadFile(cfg.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate to pool")
		}
		creds := credentials.NewTLS(&tls.Config{RootCAs: certPool, MinVersion: tls.VersionTLS12})
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)))
		logger.Info("TLS enabled for tracing with CA from: %s", cfg.TLSCAPath)

	default:
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	return opts, nil
}

// Start implements lifecycle.Component
func (p *Provider) Start(ctx context.Context) error {
	return nil
}

// Stop flushes pending spans
func (p *Provider) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.Error("Error shutting down tracer provider: %v", err)
		return err
	}
	p.logger.Debug("Tracing provider stopped")
	return nil
}

// Name implements lifecycle.Component
func (p *Provider) Name() string {
	return "Tracing Provider"
}

// IsEnabled returns whether spans are exported
func (p *Provider) IsEnabled() bool {
	return p.enabled
}

// StartSpan starts a span on the global costlens tracer
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
