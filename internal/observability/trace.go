package observability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext is the correlation data threaded through the request
// pipeline: a trace ID, span ID, sampling flag, and baggage. It wraps
// OTel's own SpanContext and baggage types; the W3C traceparent string
// itself is formatted and parsed here (ToTraceparent, FromTraceparent),
// using OTel's hex ID helpers for the trace and span IDs.
type TraceContext struct {
	sc trace.SpanContext
	bg baggage.Baggage
}

// NewTraceContext creates a fresh, sampled root TraceContext.
func NewTraceContext() TraceContext {
	return TraceContext{
		sc: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    newRandomTraceID(),
			SpanID:     newRandomSpanID(),
			TraceFlags: trace.FlagsSampled,
		}),
	}
}

// Child derives a new TraceContext for a child span: same trace ID, a
// fresh span ID, baggage carried forward unchanged.
func (tc TraceContext) Child() TraceContext {
	return TraceContext{
		sc: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    tc.sc.TraceID(),
			SpanID:     newRandomSpanID(),
			TraceFlags: tc.sc.TraceFlags(),
		}),
		bg: tc.bg,
	}
}

// IsValid reports whether both trace ID and span ID are non-zero.
func (tc TraceContext) IsValid() bool { return tc.sc.IsValid() }

// IsSampled reports the sampled bit of trace flags.
func (tc TraceContext) IsSampled() bool { return tc.sc.IsSampled() }

// SetSampled returns a copy of tc with the sampled flag set or cleared.
func (tc TraceContext) SetSampled(sampled bool) TraceContext {
	flags := tc.sc.TraceFlags()
	if sampled {
		flags |= trace.FlagsSampled
	} else {
		flags &^= trace.FlagsSampled
	}
	tc.sc = trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tc.sc.TraceID(),
		SpanID:     tc.sc.SpanID(),
		TraceFlags: flags,
	})
	return tc
}

// TraceID returns the 128-bit trace ID as a hex string.
func (tc TraceContext) TraceID() string { return tc.sc.TraceID().String() }

// SpanID returns the 64-bit span ID as a hex string.
func (tc TraceContext) SpanID() string { return tc.sc.SpanID().String() }

// WithBaggageMember returns a copy of tc with an additional baggage entry.
func (tc TraceContext) WithBaggageMember(key, value string) (TraceContext, error) {
	m, err := baggage.NewMember(key, value)
	if err != nil {
		return tc, fmt.Errorf("observability: baggage member %q: %w", key, err)
	}
	bg := tc.bg
	next, err := bg.SetMember(m)
	if err != nil {
		return tc, fmt.Errorf("observability: set baggage member %q: %w", key, err)
	}
	tc.bg = next
	return tc, nil
}

// BaggageValue returns the value of a baggage member, or "" if absent.
func (tc TraceContext) BaggageValue(key string) string {
	return tc.bg.Member(key).Value()
}

// ToTraceparent renders the W3C "traceparent" header value: a fixed
// 55-character string "version-traceid-spanid-flags".
func (tc TraceContext) ToTraceparent() string {
	return fmt.Sprintf("00-%s-%s-%02x", tc.sc.TraceID(), tc.sc.SpanID(), uint8(tc.sc.TraceFlags()))
}

// ToBaggageHeader renders the "baggage" header value.
func (tc TraceContext) ToBaggageHeader() string {
	return tc.bg.String()
}

// FromTraceparent parses a W3C "traceparent" header value.
func FromTraceparent(header string) (TraceContext, error) {
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return TraceContext{}, fmt.Errorf("observability: malformed traceparent %q", header)
	}
	version, traceIDHex, spanIDHex, flagsHex := parts[0], parts[1], parts[2], parts[3]
	if len(version) != 2 || len(traceIDHex) != 32 || len(spanIDHex) != 16 || len(flagsHex) != 2 {
		return TraceContext{}, fmt.Errorf("observability: malformed traceparent %q", header)
	}
	flagsByte, err := strconv.ParseUint(flagsHex, 16, 8)
	if err != nil {
		return TraceContext{}, fmt.Errorf("observability: bad trace flags in traceparent: %w", err)
	}
	flags := uint8(flagsByte)
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return TraceContext{}, fmt.Errorf("observability: bad trace id in traceparent: %w", err)
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return TraceContext{}, fmt.Errorf("observability: bad span id in traceparent: %w", err)
	}
	return TraceContext{
		sc: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.TraceFlags(flags),
		}),
	}, nil
}

// ParseBaggageHeader parses a W3C "baggage" header value onto tc.
func ParseBaggageHeader(tc TraceContext, header string) (TraceContext, error) {
	bg, err := baggage.Parse(header)
	if err != nil {
		return tc, fmt.Errorf("observability: parse baggage: %w", err)
	}
	tc.bg = bg
	return tc, nil
}

// SpanContext exposes the underlying OTel SpanContext, e.g. to start a
// span as a child of this TraceContext via trace.ContextWithSpanContext.
func (tc TraceContext) SpanContext() trace.SpanContext { return tc.sc }

type traceContextKey struct{}

// ContextWithTraceContext attaches tc to ctx.
func ContextWithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// TraceContextFromContext retrieves the TraceContext attached to ctx, if any.
func TraceContextFromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)
	return tc, ok
}
