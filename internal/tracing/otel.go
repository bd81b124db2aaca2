package tracing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ProviderConfig configures the span pipeline of one deskpilot process.
type ProviderConfig struct {
	ServiceName string
	// SampleRatio is the fraction of root spans kept. Zero keeps them all.
	SampleRatio float64
	// Processors receive every ended span, e.g. an exporter or a recorder.
	Processors []sdktrace.SpanProcessor
}

// Provider owns the tracer provider installed as the otel global.
type Provider struct {
	tp       *sdktrace.TracerProvider
	shutdown sync.Once
	err      error
}

var (
	installMu sync.Mutex
	installed *Provider
)

// NewProvider builds a tracer provider and installs it globally. Agent runs,
// channel sends, model streams and tool calls report into it through
// StartSpan. A second call returns the provider already installed.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	installMu.Lock()
	defer installMu.Unlock()
	if installed != nil {
		return installed, nil
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("tracing: service name is required")
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing: sample ratio %v out of range [0, 1]", cfg.SampleRatio)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	for _, sp := range cfg.Processors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}

	p := &Provider{tp: sdktrace.NewTracerProvider(opts...)}
	otel.SetTracerProvider(p.tp)
	installed = p
	return p, nil
}

// Shutdown flushes pending spans. Later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.shutdown.Do(func() {
		p.err = p.tp.Shutdown(ctx)
	})
	return p.err
}

// StartSpan opens a span under the tracer of the calling package. The first
// span of a run also seeds the trace id carried in ctx for log fields.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if runID := GetRunID(ctx); runID != "" {
		attrs = append(attrs, attribute.String("deskpilot.run_id", runID))
	}
	if sessionID := GetSessionID(ctx); sessionID != "" {
		attrs = append(attrs, attribute.String("deskpilot.session_id", sessionID))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// EndSpan marks span failed when err is set, then ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
