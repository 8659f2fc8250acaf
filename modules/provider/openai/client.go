package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// maxResponseSize caps how much of an answer body is read.
	maxResponseSize = 10 << 20
	streamBuffer    = 64
)

// request builds an authenticated POST to path. body is wrapped in a fresh
// reader so the same bytes can be sent again on retry.
func (p *Provider) request(ctx context.Context, path, contentType string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return req, nil
}

// postJSON sends payload to path and returns the body of a 2xx answer.
func (p *Provider) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode %s request: %w", path, err)
	}
	return p.send(ctx, func(ctx context.Context) (*http.Request, error) {
		return p.request(ctx, path, "application/json", body)
	})
}

// do sends req with the bounded client and reads at most maxResponseSize
// bytes of the answer.
func (p *Provider) do(req *http.Request) (*response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, mapConnectionError(err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// Complete returns the whole answer to req.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (out provider.CompletionResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "openai.complete", attribute.String("llm.model", p.config.Model))
	defer func() {
		telemetry.EndSpan(span, err)
		observe("complete", err)
	}()

	body, err := p.postJSON(ctx, "/chat/completions", p.chatRequestFor(req, false))
	if err != nil {
		return out, err
	}
	var resp chatResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("openai: decode completion: %w", err)
		return out, err
	}
	return resp.completion(), nil
}

// Stream starts a streamed completion. Streams are not retried: once the
// caller has shown part of an answer, a second one cannot replace it.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	body, err := json.Marshal(p.chatRequestFor(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai: encode stream request: %w", err)
	}
	httpReq, err := p.request(ctx, "/chat/completions", "application/json", body)
	if err != nil {
		return nil, err
	}

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		err = mapConnectionError(err)
		observe("stream", err)
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		err = mapHTTPError(resp.StatusCode, raw)
		observe("stream", err)
		return nil, err
	}
	observe("stream", nil)

	ch := make(chan provider.StreamChunk, streamBuffer)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// HealthCheck asks for a single token, which exercises the key, the model
// and the quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Sampling: provider.Sampling{MaxTokens: 1},
	})
	return err
}

func (p *Provider) ContextWindowSize() int { return p.window }

func (p *Provider) ModelName() string { return p.config.Model }

// observe counts a finished request by operation and outcome.
func observe(op string, err error) {
	telemetry.LLMRequests.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, provider.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, provider.ErrContentPolicy):
		return "refused"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
