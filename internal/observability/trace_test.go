package observability_test

import (
	"testing"

	"github.com/matgreaves/urishort/internal/observability"
)

func TestTraceparent_RoundTrip(t *testing.T) {
	tc := observability.NewTraceContext()

	header := tc.ToTraceparent()
	if len(header) != 55 {
		t.Fatalf("traceparent length = %d, want 55: %q", len(header), header)
	}

	parsed, err := observability.FromTraceparent(header)
	if err != nil {
		t.Fatalf("FromTraceparent: %v", err)
	}
	if parsed.TraceID() != tc.TraceID() {
		t.Fatalf("TraceID = %q, want %q", parsed.TraceID(), tc.TraceID())
	}
	if parsed.SpanID() != tc.SpanID() {
		t.Fatalf("SpanID = %q, want %q", parsed.SpanID(), tc.SpanID())
	}
	if parsed.IsSampled() != tc.IsSampled() {
		t.Fatalf("IsSampled = %v, want %v", parsed.IsSampled(), tc.IsSampled())
	}
}

func TestTraceContext_ChildSharesTraceID(t *testing.T) {
	root := observability.NewTraceContext()
	child := root.Child()

	if child.TraceID() != root.TraceID() {
		t.Fatalf("child TraceID = %q, want %q", child.TraceID(), root.TraceID())
	}
	if child.SpanID() == root.SpanID() {
		t.Fatal("child SpanID: want distinct from parent")
	}
}

func TestTraceContext_SetSampled(t *testing.T) {
	tc := observability.NewTraceContext()
	unsampled := tc.SetSampled(false)
	if unsampled.IsSampled() {
		t.Fatal("IsSampled after SetSampled(false): want false")
	}
	resampled := unsampled.SetSampled(true)
	if !resampled.IsSampled() {
		t.Fatal("IsSampled after SetSampled(true): want true")
	}
}

func TestTraceContext_Baggage(t *testing.T) {
	tc := observability.NewTraceContext()
	tc, err := tc.WithBaggageMember("user_id", "42")
	if err != nil {
		t.Fatalf("WithBaggageMember: %v", err)
	}
	if v := tc.BaggageValue("user_id"); v != "42" {
		t.Fatalf("BaggageValue = %q, want 42", v)
	}

	header := tc.ToBaggageHeader()
	parsed, err := observability.ParseBaggageHeader(observability.NewTraceContext(), header)
	if err != nil {
		t.Fatalf("ParseBaggageHeader: %v", err)
	}
	if v := parsed.BaggageValue("user_id"); v != "42" {
		t.Fatalf("parsed BaggageValue = %q, want 42", v)
	}
}

func TestFromTraceparent_Malformed(t *testing.T) {
	if _, err := observability.FromTraceparent("not-a-traceparent"); err == nil {
		t.Fatal("FromTraceparent: want error on malformed header")
	}
}
