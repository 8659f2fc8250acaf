package security

import (
	"os"
	"slices"
	"strings"
)

// minSecretLen is the shortest literal scrubbed from variable values.
// Shorter values ("yes", "1") would cause false positives.
const minSecretLen = 8

// envFilter decides which variables a subprocess inherits.
type envFilter struct {
	prefixes []string
	names    []string
}

// childEnv drops the bot's own credentials and those of the SDKs it links.
var childEnv = envFilter{
	prefixes: []string{"OPENAI_", "TELEGRAM_", "TGPT_", "AWS_SECRET", "AWS_SESSION_TOKEN", "OTEL_EXPORTER_OTLP_HEADERS"},
	names:    []string{"API_KEY", "AWS_SECRET_ACCESS_KEY", "BOT_TOKEN", "DATABASE_URL"},
}

func (f envFilter) drops(name string) bool {
	name = strings.ToUpper(name)
	if slices.Contains(f.names, name) {
		return true
	}
	return slices.ContainsFunc(f.prefixes, func(p string) bool {
		return strings.HasPrefix(name, p)
	})
}

// filter keeps the entries of environ that f lets through, scrubbing
// secrets from their values.
func (f envFilter) filter(environ []string, secrets []string) []string {
	var scrub *strings.Replacer
	if pairs := secretPairs(secrets); len(pairs) > 0 {
		scrub = strings.NewReplacer(pairs...)
	}

	kept := environ[:0:0]
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || f.drops(name) {
			continue
		}
		if scrub != nil {
			value = scrub.Replace(value)
		}
		kept = append(kept, name+"="+value)
	}
	return kept
}

func secretPairs(secrets []string) []string {
	var pairs []string
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			pairs = append(pairs, s, RedactPlaceholder)
		}
	}
	return pairs
}

// SanitizedEnv returns the process environment for subprocesses such as
// ffmpeg: credential variables are removed and any of secrets left in the
// remaining values is replaced with RedactPlaceholder.
func SanitizedEnv(secrets ...string) []string {
	return childEnv.filter(os.Environ(), secrets)
}
