package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanKind mirrors the original Context.h's SpanKind enum.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

func (k SpanKind) otel() trace.SpanKind {
	switch k {
	case SpanKindServer:
		return trace.SpanKindServer
	case SpanKindClient:
		return trace.SpanKindClient
	case SpanKindProducer:
		return trace.SpanKindProducer
	case SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

// Span is a move-only-in-spirit handle around an OTel span: ending it
// twice is safe (the second call is a no-op). A Span that is dropped
// without End is never ended, so callers are expected to defer
// span.End() immediately after StartSpan.
type Span struct {
	otel trace.Span
	log  *ScopedLogger

	mu    sync.Mutex
	ended bool
}

// StartSpan starts a span named name as a child of any TraceContext
// already attached to ctx, returning the child context and the Span
// handle. Callers must call span.End().
func (p *Provider) StartSpan(ctx context.Context, name string, kind SpanKind) (context.Context, *Span) {
	if tc, ok := TraceContextFromContext(ctx); ok {
		ctx = trace.ContextWithSpanContext(ctx, tc.SpanContext())
	}
	otelCtx, otelSpan := p.tracer.Start(ctx, name, trace.WithSpanKind(kind.otel()))

	child := TraceContext{sc: otelSpan.SpanContext()}
	if tc, ok := TraceContextFromContext(ctx); ok {
		child.bg = tc.bg
	}
	otelCtx = ContextWithTraceContext(otelCtx, child)

	return otelCtx, &Span{otel: otelSpan, log: scopedLoggerFromContext(otelCtx)}
}

// Attr attaches a string attribute to the span.
func (s *Span) Attr(key, value string) *Span {
	s.otel.SetAttributes(attribute.String(key, value))
	return s
}

// AttrInt64 attaches an int64 attribute.
func (s *Span) AttrInt64(key string, value int64) *Span {
	s.otel.SetAttributes(attribute.Int64(key, value))
	return s
}

// AttrFloat64 attaches a float64 attribute.
func (s *Span) AttrFloat64(key string, value float64) *Span {
	s.otel.SetAttributes(attribute.Float64(key, value))
	return s
}

// AttrBool attaches a bool attribute.
func (s *Span) AttrBool(key string, value bool) *Span {
	s.otel.SetAttributes(attribute.Bool(key, value))
	return s
}

// StatusCode mirrors the original Span.h's StatusCode enum.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOk
	StatusError
)

// SetStatus records the span's outcome.
func (s *Span) SetStatus(code StatusCode, message string) *Span {
	switch code {
	case StatusOk:
		s.otel.SetStatus(codes.Ok, message)
	case StatusError:
		s.otel.SetStatus(codes.Error, message)
	default:
		s.otel.SetStatus(codes.Unset, message)
	}
	return s
}

// AddEvent records a named event with optional attributes.
func (s *Span) AddEvent(name string, attrs map[string]string) *Span {
	opts := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		opts = append(opts, attribute.String(k, v))
	}
	s.otel.AddEvent(name, trace.WithAttributes(opts...))
	return s
}

// IsRecording reports whether the span is sampled and recording.
func (s *Span) IsRecording() bool { return s.otel.IsRecording() }

// End finishes the span. Idempotent.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.otel.End()
}

// IsEnded reports whether End has already been called.
func (s *Span) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
