// Package provider holds the contracts between the bot and its language
// model backends: chat completion, blocking or streamed, speech
// transcription and image generation.
package provider

import "errors"

// Backends wrap these so callers can react with errors.Is.
var (
	ErrRateLimit     = errors.New("provider rate limited")
	ErrProviderDown  = errors.New("provider unavailable")
	ErrContextLength = errors.New("context length exceeded")
	ErrUnsupported   = errors.New("provider capability not supported")
	ErrNoProvider    = errors.New("no provider configured")

	// ErrQuotaExceeded means the account is out of credit. Waiting does
	// not help, unlike ErrRateLimit.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrContentPolicy means the backend refused the prompt.
	ErrContentPolicy = errors.New("rejected by provider content policy")
)

// IsRetryable reports whether the same request may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
