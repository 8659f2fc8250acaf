package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// Poller fetches updates with getUpdates long polling and hands them to
// the dispatcher. The offset advances past every update received, whether
// or not the dispatcher accepts it.
type Poller struct {
	client *Client
	submit func(context.Context, *Update) error
	logger *slog.Logger
	config Config

	// pause is the wait after maxConsecutivePollingErrors failures in a row.
	pause time.Duration
	// after is time.After, replaced in tests.
	after func(time.Duration) <-chan time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a Poller handing every update to submit.
func NewPoller(client *Client, submit func(context.Context, *Update) error, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		client: client,
		submit: submit,
		logger: logger,
		config: config,
		pause:  errorPauseDuration,
		after:  time.After,
		done:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Stop cancels the pending getUpdates call and waits for the loop to
// return. Calling it again is a no-op.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			close(p.done)
			return
		}
		p.cancel()
	})
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	offset, failures := 0, 0
	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			if !p.wait(ctx, p.backoff(err, failures)) {
				return
			}
			if failures >= maxConsecutivePollingErrors {
				failures = 0
			}
			continue
		}

		failures = 0
		for i := range updates {
			u := &updates[i]
			offset = u.UpdateID + 1
			if err := p.submit(ctx, u); err != nil {
				p.logger.Warn("telegram: update dropped", "update_id", u.UpdateID, "error", err)
			}
		}
	}
}

// backoff logs a failed poll and returns how long to wait before the
// next one: the delay Telegram asks for under flood control, the pause
// after too many failures in a row, or nothing.
func (p *Poller) backoff(err error, failures int) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		d := time.Duration(apiErr.RetryAfter) * time.Second
		p.logger.Warn("telegram: getUpdates flood control", "retry_after", d)
		return d
	}

	p.logger.Error("telegram: getUpdates failed", "error", err, "consecutive_errors", failures)
	if failures >= maxConsecutivePollingErrors {
		p.logger.Warn("telegram: polling paused after consecutive errors", "pause", p.pause)
		return p.pause
	}
	return 0
}

// wait sleeps for d unless ctx ends first, and reports whether to go on.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.after(d):
		return true
	}
}
