// Package security holds the protections shared by the bot's modules:
// secret redaction for logs and config views, per-key rate limiting,
// subprocess environment sanitizing and inbound payload validation.
package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// RedactorService is the name the process-wide Redactor is registered
// under, so modules can add the secrets they load.
const RedactorService = "security.redactor"

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// sensitiveKey matches config keys whose string values are always hidden.
var sensitiveKey = regexp.MustCompile(`(?i)(secret|token|password|passwd|key|credential|bearer|basic_pass|dsn)`)

// ruleSet is an immutable snapshot of what a Redactor hides. Writers
// build a new set; Redact reads whichever set is current.
type ruleSet struct {
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

func (rs *ruleSet) apply(s string) string {
	if rs.replacer != nil {
		s = rs.replacer.Replace(s)
	}
	for _, p := range rs.patterns {
		s = p.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}

// Redactor hides secrets in strings and decoded config trees. Known token
// shapes are matched by pattern; credentials loaded at runtime are added as
// literals. The zero value hides nothing until rules are added. Safe for
// concurrent use.
type Redactor struct {
	mu    sync.Mutex // serializes writers
	rules atomic.Pointer[ruleSet]
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.rules.Store(&ruleSet{patterns: DefaultPatterns()})
	return r
}

func (r *Redactor) load() *ruleSet {
	if rs := r.rules.Load(); rs != nil {
		return rs
	}
	return &ruleSet{}
}

func (r *Redactor) update(fn func(next *ruleSet) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	next := &ruleSet{
		patterns: slices.Clone(cur.patterns),
		literals: slices.Clone(cur.literals),
		replacer: cur.replacer,
	}
	if fn(next) {
		r.rules.Store(next)
	}
}

// AddPattern hides every match of pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.update(func(next *ruleSet) bool {
		next.patterns = append(next.patterns, pattern)
		return true
	})
}

// AddLiteral hides secret wherever it appears. Empty and known values are
// ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.update(func(next *ruleSet) bool {
		if slices.Contains(next.literals, secret) {
			return false
		}
		next.literals = append(next.literals, secret)
		// Longest first, so a secret containing another goes as a whole.
		slices.SortFunc(next.literals, func(a, b string) int {
			return cmp.Compare(len(b), len(a))
		})
		pairs := make([]string, 0, 2*len(next.literals))
		for _, lit := range next.literals {
			pairs = append(pairs, lit, RedactPlaceholder)
		}
		next.replacer = strings.NewReplacer(pairs...)
		return true
	})
}

// Redact returns s with every literal and pattern match replaced by
// RedactPlaceholder. Literals run first so a token inside a URL is not
// split by a shorter pattern.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	return r.load().apply(s)
}

// RedactMap rewrites a decoded YAML or JSON tree in place. Strings under a
// sensitive key are replaced outright; every other string is scrubbed.
func (r *Redactor) RedactMap(m map[string]any) {
	rs := r.load()
	for k, v := range m {
		m[k] = rs.redactValue(v, sensitiveKey.MatchString(k))
	}
}

func (rs *ruleSet) redactValue(v any, hide bool) any {
	switch val := v.(type) {
	case string:
		if hide && val != "" {
			return RedactPlaceholder
		}
		return rs.apply(val)
	case map[string]any:
		for k, sub := range val {
			val[k] = rs.redactValue(sub, sensitiveKey.MatchString(k))
		}
	case []any:
		for i, item := range val {
			val[i] = rs.redactValue(item, hide)
		}
	}
	return v
}

// DefaultPatterns returns the token shapes the bot handles: Telegram bot
// tokens, OpenAI keys and bearer credentials.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`[0-9]{6,12}:[A-Za-z0-9_-]{30,}`),
		regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/\-]{16,}=*`),
	}
}
