package security

import (
	"regexp"
	"testing"
)

func TestNewRandomToken(t *testing.T) {
	t.Parallel()

	// Telegram accepts 1-256 characters of A-Z, a-z, 0-9, _ and -.
	valid := regexp.MustCompile(`^[A-Za-z0-9_-]{16,256}$`)

	seen := make(map[string]bool)
	for range 100 {
		tok := NewRandomToken()
		if !valid.MatchString(tok) {
			t.Fatalf("token %q is not a valid webhook secret", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
