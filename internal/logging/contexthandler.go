package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes evaluated at log time.
type ContextProvider func() []slog.Attr

// StringAttr builds a provider reporting fn under key.
func StringAttr(key string, fn func() string) ContextProvider {
	return func() []slog.Attr {
		return []slog.Attr{slog.String(key, fn())}
	}
}

// ContextHandler wraps another handler and injects dynamic context attributes.
// Providers must be safe to call from any goroutine.
type ContextHandler struct {
	inner     slog.Handler
	providers []ContextProvider
}

// NewContextHandler creates a handler that adds dynamic context to each record.
func NewContextHandler(inner slog.Handler, providers ...ContextProvider) *ContextHandler {
	valid := make([]ContextProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			valid = append(valid, p)
		}
	}
	return &ContextHandler{inner: inner, providers: valid}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle evaluates the providers and delegates to the inner handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.providers {
		r.AddAttrs(p()...)
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler with the given attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), providers: h.providers}
}

// WithGroup returns a new ContextHandler with the given group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), providers: h.providers}
}
