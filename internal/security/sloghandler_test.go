package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		log  func(*slog.Logger)
		leak string
		keep string
	}{
		{
			name: "message",
			log:  func(l *slog.Logger) { l.Info("getMe failed for " + botToken) },
			leak: botToken,
			keep: RedactPlaceholder,
		},
		{
			name: "string attribute",
			log:  func(l *slog.Logger) { l.Info("loaded", "token", "runtime-secret", "chat", "visible") },
			leak: "runtime-secret",
			keep: "visible",
		},
		{
			name: "With attributes",
			log:  func(l *slog.Logger) { l.With("api_key", "runtime-secret").Info("call") },
			leak: "runtime-secret",
			keep: "call",
		},
		{
			name: "WithGroup",
			log:  func(l *slog.Logger) { l.WithGroup("auth").Info("attempt", "key", botToken) },
			leak: botToken,
			keep: "auth.key=",
		},
		{
			name: "nested group",
			log: func(l *slog.Logger) {
				l.Info("req", slog.Group("http", slog.String("auth", "runtime-secret"), slog.String("path", "/webhooks/telegram")))
			},
			leak: "runtime-secret",
			keep: "/webhooks/telegram",
		},
		{
			name: "error value",
			log: func(l *slog.Logger) {
				l.Error("telegram: getMe failed", "error", errors.New(`Post "https://api.telegram.org/bot`+botToken+`/getMe": timeout`))
			},
			leak: botToken,
			keep: "timeout",
		},
		{
			name: "clean record untouched",
			log:  func(l *slog.Logger) { l.Info("normal message", "count", 3) },
			leak: RedactPlaceholder,
			keep: "count=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRedactor()
			r.AddLiteral("runtime-secret")
			var buf bytes.Buffer
			tt.log(slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), r)))

			out := buf.String()
			if strings.Contains(out, tt.leak) {
				t.Errorf("output contains %q: %s", tt.leak, out)
			}
			if !strings.Contains(out, tt.keep) {
				t.Errorf("output misses %q: %s", tt.keep, out)
			}
		})
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewRedactingHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}), NewRedactor())
	if h.Enabled(t.Context(), slog.LevelInfo) || !h.Enabled(t.Context(), slog.LevelError) {
		t.Error("Enabled does not follow the wrapped handler's level")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
		want    []string
		absent  string
	}{
		{name: "defaults", cfg: LogConfig{}, want: []string{"msg=visible"}, absent: "hidden"},
		{name: "json debug", cfg: LogConfig{Level: "debug", Format: "JSON"}, want: []string{`"msg":"hidden"`, `"msg":"visible"`}},
		{name: "warn", cfg: LogConfig{Level: "WARN", Format: "text"}, absent: "visible"},
		{name: "bad level", cfg: LogConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: LogConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger, err := NewLogger(&buf, tt.cfg, NewRedactor())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			logger.Debug("hidden")
			logger.Info("visible")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output misses %q: %s", w, out)
				}
			}
			if tt.absent != "" && strings.Contains(out, tt.absent) {
				t.Errorf("output contains %q: %s", tt.absent, out)
			}
		})
	}
}
