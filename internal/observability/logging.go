package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a configuration level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w. Format selects the
// handler: "json" for machine-readable output, anything else for text.
// All output passes through a redacting handler so credential-bearing
// attributes never reach the sink.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(NewRedactingHandler(handler))
}

// sensitiveKeys lists attribute names whose values are replaced with
// [REDACTED]. Keys are compared case-insensitively with underscores
// stripped, so api_key, apiKey and APIKey all match.
var sensitiveKeys = map[string]bool{
	"apikey":        true,
	"secret":        true,
	"secretkey":     true,
	"password":      true,
	"token":         true,
	"credential":    true,
	"authorization": true,
}

const redactedPlaceholder = "[REDACTED]"

// redactingHandler wraps another slog.Handler and redacts sensitive
// attribute values before they are handled.
type redactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps handler so that sensitive attributes are
// redacted in every record, including attributes bound with With.
func NewRedactingHandler(handler slog.Handler) slog.Handler {
	return &redactingHandler{inner: handler}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name)}
}

// redactAttr returns a with its value replaced by the placeholder when
// the key is sensitive. Group values are redacted recursively.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		redacted := make([]slog.Attr, len(members))
		for i, m := range members {
			redacted[i] = redactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	normalized := strings.ToLower(strings.ReplaceAll(a.Key, "_", ""))
	if sensitiveKeys[normalized] {
		return slog.String(a.Key, redactedPlaceholder)
	}
	return a
}
