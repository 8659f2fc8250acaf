package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/tgpt/internal/gateway"
	"github.com/flemzord/tgpt/internal/security"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// ErrInvalidSecret is returned for webhook calls without the configured
// secret token. The gateway answers it with 401.
var ErrInvalidSecret = fmt.Errorf("telegram: invalid webhook secret token: %w", gateway.ErrUnauthorized)

// updateReceiver turns webhook deliveries into updates for submit. Telegram
// authenticates with its own header instead of a dispatcher signature, so
// secret is checked here; an empty secret accepts every call.
func updateReceiver(submit func(context.Context, *Update) error, logger *slog.Logger, secret string) gateway.WebhookHandlerFunc {
	want := []byte(secret)
	return func(ctx context.Context, _ string, body []byte, headers http.Header) error {
		if len(want) > 0 && subtle.ConstantTimeCompare(want, []byte(headers.Get(secretTokenHeader))) != 1 {
			return ErrInvalidSecret
		}
		update, err := decodeUpdate(body)
		if err != nil {
			return err
		}
		logger.Debug("telegram: webhook update", "update_id", update.UpdateID, "kind", update.Kind())
		return submit(ctx, update)
	}
}

// decodeUpdate screens body for hostile nesting before unmarshalling it.
// Both failures wrap gateway.ErrBadPayload.
func decodeUpdate(body []byte) (*Update, error) {
	if err := security.ValidatePayload(body, security.PayloadLimits{}); err != nil {
		return nil, fmt.Errorf("telegram: rejected update: %w: %w", gateway.ErrBadPayload, err)
	}
	u := new(Update)
	if err := json.Unmarshal(body, u); err != nil {
		return nil, fmt.Errorf("telegram: invalid update JSON: %w: %w", gateway.ErrBadPayload, err)
	}
	return u, nil
}
