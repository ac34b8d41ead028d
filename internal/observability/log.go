package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// consoleHandler renders "[LEVEL] message trace=<hex> span=<hex>
// flags=<hex> key=value ..." per
// original_source/libs/core/observability/include/obs/ConsoleBackend.h.
type consoleHandler struct {
	w     io.Writer
	level slog.Level
	mu    *sync.Mutex
	attrs []slog.Attr
}

func newConsoleHandler(level slog.Level) *consoleHandler {
	return &consoleHandler{w: os.Stdout, level: level, mu: &sync.Mutex{}}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.Level.String(), r.Message)

	if tc, ok := TraceContextFromContext(ctx); ok && tc.IsValid() {
		fmt.Fprintf(&b, " trace=%s span=%s flags=%02x", tc.TraceID(), tc.SpanID(), uint8(tc.SpanContext().TraceFlags()))
	}
	for k, v := range scopedAttrsFromContext(ctx) {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{w: h.w, level: h.level, mu: h.mu, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	// Grouping isn't part of the console line format; flatten instead.
	return h
}
