package observability

import (
	"context"
	"time"
)

// Decorate wraps op with a span named name plus latency/outcome metrics,
// without altering op's behavior — the "observable decorator" pattern:
// composition by reference, the wrapped function's caller sees exactly
// the same signature and semantics.
func (p *Provider) Decorate(reg *Registry, name string, latency Histogram, calls Counter, errs Counter, op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, span := p.StartSpan(ctx, name, SpanKindInternal)
		defer span.End()

		start := time.Now()
		err := op(ctx)
		elapsed := time.Since(start)

		reg.Add(ctx, calls, 1)
		reg.Record(ctx, latency, float64(elapsed.Microseconds())/1000.0)
		if err != nil {
			reg.Add(ctx, errs, 1)
			span.SetStatus(StatusError, err.Error())
		} else {
			span.SetStatus(StatusOk, "")
		}
		return err
	}
}
