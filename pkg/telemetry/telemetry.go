// Package telemetry provides the no-op OpenTelemetry tracer the interpreter
// falls back to when no TracerProvider is configured. Every step still runs
// through the tracing path, so wiring a real provider later changes nothing
// but the option.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Provider is a trace.TracerProvider whose spans record nothing.
type Provider struct {
	trace.TracerProvider
}

var (
	provider    = &Provider{}
	tracer      = &Tracer{}
	span        = &Span{}
	spanContext = trace.SpanContext{}
)

// NewProvider returns the shared no-op provider.
func NewProvider() *Provider {
	return provider
}

func (p *Provider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return tracer
}

// Tracer hands out the shared no-op span.
type Tracer struct {
	trace.Tracer
}

func (t *Tracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, span
}

// Span discards everything recorded on it.
type Span struct {
	trace.Span
}

func (s *Span) End(options ...trace.SpanEndOption)                  {}
func (s *Span) AddEvent(name string, options ...trace.EventOption)  {}
func (s *Span) AddLink(link trace.Link)                             {}
func (s *Span) IsRecording() bool                                   { return false }
func (s *Span) RecordError(err error, options ...trace.EventOption) {}
func (s *Span) SetAttributes(kv ...attribute.KeyValue)              {}
func (s *Span) SetName(name string)                                 {}
func (s *Span) SetStatus(code codes.Code, description string)       {}
func (s *Span) SpanContext() trace.SpanContext                      { return spanContext }
func (s *Span) TracerProvider() trace.TracerProvider                { return provider }
