package observability

import "context"

// ScopedLogger is a thin handle returned alongside a Span, kept for
// symmetry with the original API shape (Span carries its own logging
// scope); logging itself always goes through Provider.Logger() with a
// context carrying WithAttrs-pushed attributes.
type ScopedLogger struct {
	ctx context.Context
}

func scopedLoggerFromContext(ctx context.Context) *ScopedLogger {
	return &ScopedLogger{ctx: ctx}
}

type scopedAttrsKey struct{}

// WithAttrs returns a context with additional log attributes pushed
// onto the scoped attribute stack. Every log call made with the
// returned context (or any context derived from it) includes these
// attributes. This is the Go-idiomatic substitute for the original's
// thread-local attribute stack: goroutines have no thread-local
// storage, so the stack travels on the context instead, and unwinds
// naturally when the derived context goes out of scope.
func WithAttrs(ctx context.Context, attrs map[string]any) context.Context {
	existing := scopedAttrsFromContext(ctx)
	merged := make(map[string]any, len(existing)+len(attrs))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return context.WithValue(ctx, scopedAttrsKey{}, merged)
}

func scopedAttrsFromContext(ctx context.Context) map[string]any {
	attrs, _ := ctx.Value(scopedAttrsKey{}).(map[string]any)
	return attrs
}
