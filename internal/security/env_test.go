package security

import (
	"slices"
	"testing"
)

func TestEnvFilter_Drops(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"OPENAI_API_KEY":             true,
		"OPENAI_BASE_URL":            true,
		"TELEGRAM_BOT_TOKEN":         true,
		"TGPT_CONFIG":                true,
		"BOT_TOKEN":                  true,
		"AWS_SECRET_ACCESS_KEY":      true,
		"OTEL_EXPORTER_OTLP_HEADERS": true,
		"openai_api_key":             true,
		"PATH":                       false,
		"HOME":                       false,
		"BOT_TOKEN_FILE_DIR":         false,
	}
	for name, want := range tests {
		if got := childEnv.drops(name); got != want {
			t.Errorf("drops(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestEnvFilter_Filter(t *testing.T) {
	t.Parallel()

	environ := []string{
		"PATH=/usr/bin",
		"OPENAI_API_KEY=sk-test-value",
		"FFREPORT=file=/tmp/123456:abcdefghijk.log",
		"SHORT=abc",
		"malformed",
	}
	got := childEnv.filter(environ, []string{"123456:abcdefghijk", "abc"})
	want := []string{
		"PATH=/usr/bin",
		"FFREPORT=file=/tmp/" + RedactPlaceholder + ".log",
		"SHORT=abc",
	}
	if !slices.Equal(got, want) {
		t.Errorf("filter = %q, want %q", got, want)
	}
	if environ[1] != "OPENAI_API_KEY=sk-test-value" {
		t.Error("filter modified its input")
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Setenv("TGPT_PLAIN", "dropped")
	t.Setenv("FF_HINT", "uses secret-value-123")

	env := SanitizedEnv("secret-value-123")
	if slices.ContainsFunc(env, func(e string) bool { return e == "TGPT_PLAIN=dropped" }) {
		t.Error("TGPT_ variable kept")
	}
	if !slices.Contains(env, "FF_HINT=uses "+RedactPlaceholder) {
		t.Errorf("FF_HINT not scrubbed in %q", env)
	}
}
