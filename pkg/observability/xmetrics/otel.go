package xmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xsink"

	MetricWrites     = "xsink.writes"
	MetricWriteBytes = "xsink.write.bytes"
	MetricDropped    = "xsink.dropped"
	MetricFlushes    = "xsink.flushes"
	MetricRollovers  = "xsink.rollovers"
	MetricJournaled  = "xsink.journal.appended"
	MetricDelivered  = "xsink.delivered"
	MetricDeliveries = "xsink.deliveries"
)

type otelConfig struct {
	instrumentationName string
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
}

// Option OTel Recorder 配置选项
type Option func(*otelConfig)

// WithInstrumentationName 设置 instrumentation 名称
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithMeterProvider 设置 MeterProvider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

type otelRecorder struct {
	tracer     trace.Tracer
	writes     metric.Int64Counter
	writeBytes metric.Int64Counter
	dropped    metric.Int64Counter
	flushes    metric.Int64Counter
	rollovers  metric.Int64Counter
	journaled  metric.Int64Counter
	delivered  metric.Int64Counter
	deliveries metric.Int64Counter
}

// NewOTelRecorder 创建基于 OpenTelemetry 的 Recorder
func NewOTelRecorder(opts ...Option) (Recorder, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		tracerProvider:      otel.GetTracerProvider(),
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	meter := cfg.meterProvider.Meter(cfg.instrumentationName)

	r := &otelRecorder{tracer: cfg.tracerProvider.Tracer(cfg.instrumentationName)}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&r.writes, MetricWrites, "accepted writes", "1"},
		{&r.writeBytes, MetricWriteBytes, "accepted bytes", "By"},
		{&r.dropped, MetricDropped, "dropped writes", "1"},
		{&r.flushes, MetricFlushes, "buffer flushes", "1"},
		{&r.rollovers, MetricRollovers, "file rollovers", "1"},
		{&r.journaled, MetricJournaled, "entries appended to the journal", "1"},
		{&r.delivered, MetricDelivered, "entries acknowledged by agents", "1"},
		{&r.deliveries, MetricDeliveries, "batch delivery attempts", "1"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("xmetrics: create counter %s failed: %w", c.name, err)
		}
		*c.dst = counter
	}
	return r, nil
}

func managerAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("manager", name))
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *otelRecorder) Wrote(ctx context.Context, manager string, bytes int) {
	r.writes.Add(ctx, 1, managerAttr(manager))
	r.writeBytes.Add(ctx, int64(bytes), managerAttr(manager))
}

func (r *otelRecorder) Dropped(ctx context.Context, manager, reason string) {
	r.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("manager", manager),
		attribute.String("reason", reason),
	))
}

func (r *otelRecorder) Flushed(ctx context.Context, manager string, _ int) {
	r.flushes.Add(ctx, 1, managerAttr(manager))
}

func (r *otelRecorder) RolledOver(ctx context.Context, manager string, err error) {
	r.rollovers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("manager", manager),
		attribute.String("result", resultOf(err)),
	))
}

func (r *otelRecorder) Journaled(ctx context.Context, queue string, _ int) {
	r.journaled.Add(ctx, 1, managerAttr(queue))
}

func (r *otelRecorder) Delivered(ctx context.Context, queue, agent string, entries int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("manager", queue),
		attribute.String("agent", agent),
		attribute.String("result", resultOf(err)),
	)
	r.deliveries.Add(ctx, 1, attrs)
	if err == nil && entries > 0 {
		r.delivered.Add(ctx, int64(entries), attrs)
	}
}

func (r *otelRecorder) StartDrain(ctx context.Context, queue string) (context.Context, DrainSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := r.tracer.Start(ctx, "xsink.drain",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("manager", queue)),
	)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(delivered int, err error) {
	s.span.SetAttributes(attribute.Int("delivered", delivered))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
