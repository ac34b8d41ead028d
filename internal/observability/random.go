package observability

import (
	"crypto/rand"

	"go.opentelemetry.io/otel/trace"
)

// newRandomTraceID and newRandomSpanID mirror server/orchestrator.go's
// generateID: crypto/rand bytes, no external ID-generation dependency.

func newRandomTraceID() trace.TraceID {
	var id trace.TraceID
	_, _ = rand.Read(id[:])
	return id
}

func newRandomSpanID() trace.SpanID {
	var id trace.SpanID
	_, _ = rand.Read(id[:])
	return id
}
