package logging

import (
	"context"
	"log/slog"

	"github.com/tactiboard/engine/pkg/core"
)

// ContextProvider returns attributes evaluated at log time.
type ContextProvider func() []slog.Attr

// PlaybackAttrs returns a provider that tags records with the playback
// status, active sequence and position while a sequence is loaded. Nothing
// is added while playback is stopped.
func PlaybackAttrs(state func() core.PlaybackState) ContextProvider {
	return func() []slog.Attr {
		st := state()
		if st.Status == "" || st.Status == core.PlaybackStopped {
			return nil
		}
		return []slog.Attr{
			slog.String("playback", string(st.Status)),
			slog.String("sequence", st.ActiveSequenceID),
			slog.Float64("playbackMs", st.CurrentTime),
		}
	}
}

// ContextHandler adds the provider's attributes to each record it handles.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
