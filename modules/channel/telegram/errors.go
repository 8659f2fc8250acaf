package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/tgpt/internal/relay"
)

// Sentinel errors for Telegram operations.
var (
	// ErrFileTooLarge is returned when a download exceeds the Bot API limit.
	ErrFileTooLarge = errors.New("telegram: file too large")

	// ErrNoFile is returned when a message carries no audio or video.
	ErrNoFile = errors.New("telegram: message has no media")
)

// classify maps a Bot API send failure onto the relay error taxonomy.
// A 400 "message is not modified" becomes relay.ErrNotModified, a 429
// becomes *relay.RateLimitedError and client-side timeouts become
// relay.ErrTimeout. Anything else is returned unchanged and is fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusBadRequest && isNotModified(apiErr.Description):
			return relay.ErrNotModified
		case apiErr.Code == http.StatusTooManyRequests:
			return &relay.RateLimitedError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return relay.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return relay.ErrTimeout
	}
	return err
}

func isNotModified(description string) bool {
	return strings.Contains(strings.ToLower(description), "message is not modified")
}

// isFormattingRejected reports a 400 after which a formatted text is
// re-sent without a parse mode: invalid entities, or escaping that pushed
// the text past the length limit.
func isFormattingRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	desc := strings.ToLower(apiErr.Description)
	return strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "message is too long")
}
