package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/flemzord/tgpt/internal/gateway"
	"github.com/flemzord/tgpt/internal/security"
)

func webhookBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(privateText(123, "hello"))
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return body
}

func secretHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set(secretTokenHeader, token)
	}
	return h
}

func TestUpdateReceiver(t *testing.T) {
	t.Parallel()

	valid := webhookBody(t)
	tests := []struct {
		name      string
		secret    string
		header    http.Header
		body      []byte
		submitErr error
		wantErr   []error
		delivered bool
	}{
		{name: "matching secret", secret: "my-secret", header: secretHeader("my-secret"), body: valid, delivered: true},
		{name: "no secret configured", header: secretHeader(""), body: valid, delivered: true},
		{
			name: "missing token", secret: "my-secret", header: secretHeader(""), body: valid,
			wantErr: []error{ErrInvalidSecret, gateway.ErrUnauthorized},
		},
		{
			name: "wrong token", secret: "my-secret", header: secretHeader("wrong-secret"), body: valid,
			wantErr: []error{ErrInvalidSecret, gateway.ErrUnauthorized},
		},
		{
			name: "too deep", header: secretHeader(""),
			body:    []byte(strings.Repeat("[", 64) + strings.Repeat("]", 64)),
			wantErr: []error{security.ErrJSONTooDeep, gateway.ErrBadPayload},
		},
		{
			name: "submit refuses", header: secretHeader(""), body: valid,
			submitErr: errDispatcherStopped,
			wantErr:   []error{errDispatcherStopped},
			delivered: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []*Update
			h := updateReceiver(func(_ context.Context, u *Update) error {
				got = append(got, u)
				return tt.submitErr
			}, discardLogger(), tt.secret)

			err := h.HandleWebhook(t.Context(), "telegram", tt.body, tt.header)
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("error = %v, want %v", err, want)
				}
			}
			if len(tt.wantErr) == 0 && err != nil {
				t.Fatalf("HandleWebhook: %v", err)
			}
			if tt.delivered != (len(got) == 1) {
				t.Fatalf("delivered %d updates, want delivered=%v", len(got), tt.delivered)
			}
			if tt.delivered && (got[0].Message.From.ID != 123 || got[0].Message.Text != "hello") {
				t.Errorf("update = %+v", got[0].Message)
			}
		})
	}
}

func TestUpdateReceiver_InvalidJSON(t *testing.T) {
	t.Parallel()

	h := updateReceiver(func(context.Context, *Update) error {
		t.Error("submit called for invalid JSON")
		return nil
	}, discardLogger(), "")

	var syntaxErr *json.SyntaxError
	err := h.HandleWebhook(t.Context(), "telegram", []byte("{not json"), http.Header{})
	if !errors.As(err, &syntaxErr) || !errors.Is(err, gateway.ErrBadPayload) {
		t.Errorf("error = %v, want a JSON syntax error wrapped as bad payload", err)
	}
}
