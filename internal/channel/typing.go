package channel

import (
	"context"
	"time"
)

// DefaultIndicatorInterval is how often a chat action is re-sent. Telegram
// clears an action after about five seconds.
const DefaultIndicatorInterval = 4500 * time.Millisecond

// ActionFunc sends one chat action (typing, upload_photo, ...).
type ActionFunc func(ctx context.Context) error

// WithIndicator runs fn while re-sending a chat action every interval.
// The indicator stops as soon as fn returns. Indicator failures are ignored.
func WithIndicator(ctx context.Context, interval time.Duration, action ActionFunc, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = DefaultIndicatorInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = action(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = action(loopCtx)
			}
		}
	}()

	defer func() {
		cancel()
		<-done
	}()
	return fn(ctx)
}
