package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const (
	// maxWebhookBody caps the size of a webhook payload.
	maxWebhookBody = 1 << 20

	signatureHeader = "X-Signature-256"
	signaturePrefix = "sha256="
)

// Errors a WebhookHandler wraps to choose the response status.
var (
	// ErrUnauthorized answers 401.
	ErrUnauthorized = errors.New("gateway: unauthorized webhook")
	// ErrBadPayload answers 400.
	ErrBadPayload = errors.New("gateway: bad webhook payload")
)

// WebhookHandler processes the payload of one source. Headers are passed
// through so a handler can run its own authentication.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// WebhookHandlerFunc adapts a function to WebhookHandler.
type WebhookHandlerFunc func(ctx context.Context, source string, body []byte, headers http.Header) error

func (f WebhookHandlerFunc) HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error {
	return f(ctx, source, body, headers)
}

// route is what the dispatcher knows about one source. A secret may be
// configured before any handler registers.
type route struct {
	handler WebhookHandler
	secret  []byte
}

// verify checks the hex HMAC-SHA256 of body sent as "sha256=<hex>".
func (rt route) verify(body []byte, header string) bool {
	if len(rt.secret) == 0 {
		return true
	}
	sent, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sent)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, rt.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// WebhookDispatcher serves POST /webhooks/{source}, routing each payload
// to the handler registered for its source.
type WebhookDispatcher struct {
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// NewWebhookDispatcher returns a dispatcher with no sources.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger, routes: map[string]route{}}
}

func (d *WebhookDispatcher) edit(source string, fn func(*route)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rt := d.routes[source]
	fn(&rt)
	d.routes[source] = rt
}

// Register routes source to h. A non-empty secret replaces the one set
// from configuration.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.edit(source, func(rt *route) {
		rt.handler = h
		if secret != "" {
			rt.secret = []byte(secret)
		}
	})
}

// SetSecret requires payloads of source to carry a valid signature.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.edit(source, func(rt *route) { rt.secret = []byte(secret) })
}

// Sources returns the sources with a registered handler, sorted.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for source, rt := range d.routes {
		if rt.handler != nil {
			out = append(out, source)
		}
	}
	slices.Sort(out)
	return out
}

func (d *WebhookDispatcher) lookup(source string) route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.routes[source]
}

// ServeHTTP dispatches one payload. Unknown sources are acknowledged so
// senders stop retrying.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	rt := d.lookup(source)
	if rt.handler == nil {
		// Unknown sources share one label so callers cannot grow the metric.
		d.logger.Warn("webhook received for unregistered source", "source", source)
		webhookOutcomes.WithLabelValues("unknown", "unrouted").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "warning": "no handler registered"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		d.reject(w, source, "unreadable", http.StatusBadRequest, err)
		return
	}
	if !rt.verify(body, r.Header.Get(signatureHeader)) {
		d.reject(w, source, "bad_signature", http.StatusUnauthorized, ErrUnauthorized)
		return
	}

	if err := rt.handler.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			d.reject(w, source, "unauthorized", http.StatusUnauthorized, err)
		case errors.Is(err, ErrBadPayload):
			d.reject(w, source, "bad_payload", http.StatusBadRequest, err)
		default:
			d.logger.Error("webhook handler failed", "source", source, "error", err)
			webhookOutcomes.WithLabelValues(source, "failed").Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	webhookOutcomes.WithLabelValues(source, "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (d *WebhookDispatcher) reject(w http.ResponseWriter, source, outcome string, code int, err error) {
	d.logger.Warn("webhook rejected", "source", source, "reason", outcome, "error", err)
	webhookOutcomes.WithLabelValues(source, outcome).Inc()
	http.Error(w, http.StatusText(code), code)
}
