// Package telemetry wires OpenTelemetry traces (OTLP gRPC) and metrics
// (Prometheus pull) and exposes the instruments the server records.
//
// Usage:
//
//	p, shutdown, err := telemetry.Init(ctx, &telemetry.Config{
//	    ServiceName:    "dnspotify",
//	    MetricsEnabled: true,
//	})
//	defer shutdown(context.Background())
//	router.GET("/metrics", gin.WrapH(p.MetricsHandler()))
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	MetricsEnabled bool
	TracingEnabled bool
	OTLPEndpoint   string // gRPC endpoint, e.g. "otel-collector:4317"
	SampleRate     float64
}

// Provider wraps the tracer, the meter and the Prometheus registry.
type Provider struct {
	tracer   trace.Tracer
	meter    metric.Meter
	registry *promclient.Registry
	metrics  *Metrics
}

// ShutdownFunc flushes and shuts down telemetry providers.
type ShutdownFunc func(context.Context) error

// Init initialises the providers enabled in cfg. Disabled parts fall back
// to the global no-op implementations.
func Init(ctx context.Context, cfg *Config) (*Provider, ShutdownFunc, error) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build otel resource: %w", err)
	}

	var shutdowns []func(context.Context) error
	p := &Provider{registry: promclient.NewRegistry()}

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		conn, err := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to otel collector %s: %w", cfg.OTLPEndpoint, err)
		}

		traceExporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithGRPCConn(conn),
			otlptracegrpc.WithTimeout(10*time.Second),
		)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("create trace exporter: %w", err)
		}

		rate := cfg.SampleRate
		if rate <= 0 || rate > 1 {
			rate = 1
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown, func(context.Context) error { return conn.Close() })
	}

	if cfg.MetricsEnabled {
		exporter, err := otelprom.New(
			otelprom.WithRegisterer(p.registry),
			otelprom.WithNamespace(sanitizeName(cfg.ServiceName)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	p.tracer = otel.Tracer(cfg.ServiceName)
	p.meter = otel.Meter(cfg.ServiceName)
	p.metrics, err = newMetrics(p.meter)
	if err != nil {
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return p, shutdown, nil
}

// Noop returns a provider backed by the global no-op tracer and meter.
func Noop() *Provider {
	p := &Provider{
		tracer:   otel.Tracer("noop"),
		meter:    otel.Meter("noop"),
		registry: promclient.NewRegistry(),
	}
	p.metrics, _ = newMetrics(p.meter)
	return p
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Metrics returns the server's instruments.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// MetricsHandler serves the Prometheus registry.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// StartSpan starts a new span and injects it into the returned context.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, s := p.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span: s}
}

// Metrics groups the instruments recorded by the server.
type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	WSConnections     metric.Int64UpDownCounter
	RelationToggles   metric.Int64Counter
	Uploads           metric.Int64Counter
	UploadedBytes     metric.Int64Counter
	NotificationsSent metric.Int64Counter
	PlaysRecorded     metric.Int64Counter
	LikesReconciled   metric.Int64Counter
}

func newMetrics(m metric.Meter) (*Metrics, error) {
	var (
		out Metrics
		err error
	)
	if out.HTTPRequests, err = m.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if out.HTTPDuration, err = m.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30)); err != nil {
		return nil, err
	}
	if out.WSConnections, err = m.Int64UpDownCounter("websocket_active_connections",
		metric.WithDescription("Active WebSocket connections")); err != nil {
		return nil, err
	}
	if out.RelationToggles, err = m.Int64Counter("relation_toggles_total",
		metric.WithDescription("Like, favourite and follow toggles by outcome")); err != nil {
		return nil, err
	}
	if out.Uploads, err = m.Int64Counter("publish_total",
		metric.WithDescription("Publish attempts by kind and outcome")); err != nil {
		return nil, err
	}
	if out.UploadedBytes, err = m.Int64Counter("uploaded_bytes_total",
		metric.WithDescription("Bytes streamed to object storage"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if out.NotificationsSent, err = m.Int64Counter("notifications_fanout_total",
		metric.WithDescription("Notifications written to followers")); err != nil {
		return nil, err
	}
	if out.PlaysRecorded, err = m.Int64Counter("plays_recorded_total",
		metric.WithDescription("Play count increments")); err != nil {
		return nil, err
	}
	if out.LikesReconciled, err = m.Int64Counter("likes_reconciled_total",
		metric.WithDescription("Songs whose likes_count was repaired")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Span represents a tracing span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	SetError(err error)
	TraceID() string
}

type otelSpan struct{ span trace.Span }

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(anyAttr(key, value))
}

func (s *otelSpan) SetError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

func (s *otelSpan) TraceID() string {
	if sc := s.span.SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// TraceIDFromContext extracts the trace ID string from context.
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// Attr builds an attribute for metric options.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func anyAttr(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

func sanitizeName(s string) string {
	out := make([]byte, len(s))
	for i := range s {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}
