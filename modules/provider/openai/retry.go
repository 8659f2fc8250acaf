package openai

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/tgpt/internal/provider"
)

const (
	defaultMaxRetries = 2
	baseRetryDelay    = 500 * time.Millisecond
	maxRetryDelay     = 20 * time.Second
)

// response is a fully read API answer.
type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs the request produced by build and maps the answer to an
// error. Rate limits and server errors are retried with exponential
// backoff, or after the delay the API asks for in Retry-After. build is
// called once per attempt since a request body can be read only once.
func (p *Provider) send(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	retries := p.config.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		httpReq, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := p.do(httpReq)
		if err == nil {
			err = mapHTTPError(resp.status, resp.body)
		}
		if err == nil {
			return resp.body, nil
		}
		if attempt >= retries || !provider.IsRetryable(err) {
			return nil, err
		}

		delay := backoff(attempt)
		if resp != nil {
			if d, ok := retryAfter(resp.header); ok {
				delay = d
			}
		}
		p.logger.Warn("openai: retrying request", "attempt", attempt+1, "delay", delay, "error", err)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func backoff(attempt int) time.Duration {
	return min(baseRetryDelay<<attempt, maxRetryDelay)
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) (time.Duration, bool) {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxRetryDelay), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
