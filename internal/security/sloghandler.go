package security

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// RedactingHandler passes every record through a Redactor before handing
// it to the wrapped handler. The message, string attributes and the text
// of errors and Stringers are scrubbed; groups are walked.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.scrub(a))
		return true
	})
	clean.AddAttrs(attrs...)
	return h.next.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.scrub(a))
	}
	return h.wrap(h.next.WithAttrs(clean))
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return h.wrap(h.next.WithGroup(name))
}

func (h *RedactingHandler) wrap(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: h.redactor}
}

func (h *RedactingHandler) scrub(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		members := v.Group()
		clean := make([]slog.Attr, len(members))
		for i, m := range members {
			clean[i] = h.scrub(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindString, slog.KindAny:
		// Errors and Stringers are flattened only when they held a secret.
		text := v.String()
		if red := h.redactor.Redact(text); red != text {
			return slog.String(a.Key, red)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// LogConfig selects the root logger's output.
type LogConfig struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string `yaml:"level"`
	// Format is text or json. Empty means text.
	Format string `yaml:"format"`
}

// Validate reports an unknown level or format.
func (c LogConfig) Validate() error {
	_, err := c.handler(io.Discard)
	return err
}

func (c LogConfig) handler(w io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{}
	if c.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("security: invalid log level %q: %w", c.Level, err)
		}
		opts.Level = level
	}

	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("security: invalid log format %q (want text or json)", c.Format)
	}
}

// NewLogger builds the root logger writing to w. Every record goes through
// redactor.
func NewLogger(w io.Writer, cfg LogConfig, redactor *Redactor) (*slog.Logger, error) {
	h, err := cfg.handler(w)
	if err != nil {
		return nil, err
	}
	return slog.New(NewRedactingHandler(h, redactor)), nil
}
