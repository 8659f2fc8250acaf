package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/tgpt/internal/provider"
)

// errAuth is returned for a rejected API key. It is never retried.
var errAuth = errors.New("openai: authentication failed")

// APIError is a non-2xx answer from the API. It unwraps to the provider
// sentinel its status and error code map to, when there is one.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string

	kind error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.kind != nil {
		return fmt.Sprintf("%v: %s", e.kind, msg)
	}
	return fmt.Sprintf("openai: HTTP %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// mapHTTPError turns a response status and body into an *APIError, or nil
// for a 2xx status.
func mapHTTPError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	e := &APIError{Status: status}
	var payload errorBody
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		e.Type = payload.Error.Type
		e.Code = payload.Error.Code
		e.Message = payload.Error.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	e.kind = classify(e)
	return e
}

func classify(e *APIError) error {
	switch {
	case e.Code == "insufficient_quota":
		return provider.ErrQuotaExceeded
	case e.Status == http.StatusTooManyRequests:
		return provider.ErrRateLimit
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return errAuth
	case e.Code == "content_policy_violation":
		return provider.ErrContentPolicy
	case e.Code == "context_length_exceeded",
		e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "context_length"):
		return provider.ErrContextLength
	case e.Status >= http.StatusInternalServerError:
		return provider.ErrProviderDown
	}
	return nil
}

// mapConnectionError wraps transport failures as provider.ErrProviderDown.
// Cancellation and deadline errors are returned as is.
func mapConnectionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
