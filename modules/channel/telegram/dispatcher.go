package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/flemzord/tgpt/internal/session"
)

// errDispatcherStopped is returned by submit after stop.
var errDispatcherStopped = errors.New("telegram: dispatcher stopped")

// dispatcher fans updates out to a fixed pool of workers. Updates of the
// same chat are handled one at a time, in arrival order per worker.
type dispatcher struct {
	handle func(ctx context.Context, u *Update) error
	queue  chan *Update
	lanes  *session.Lanes
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closing   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	stopped   bool
}

func newDispatcher(handle func(context.Context, *Update) error, workers, queueSize int, logger *slog.Logger) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		handle:  handle,
		queue:   make(chan *Update, queueSize),
		lanes:   session.NewLanes(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
	}
	d.wg.Add(workers)
	for range workers {
		go d.work()
	}
	return d
}

// submit queues u, blocking while the queue is full.
func (d *dispatcher) submit(ctx context.Context, u *Update) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return errDispatcherStopped
	}
	select {
	case d.queue <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closing:
		return errDispatcherStopped
	}
}

func (d *dispatcher) work() {
	defer d.wg.Done()
	for u := range d.queue {
		key := laneKey(u)
		unlock, err := d.lanes.LockContext(d.ctx, key)
		if err != nil {
			d.logger.Debug("telegram: update dropped on shutdown", "update_id", u.UpdateID)
			continue
		}
		if err := d.handle(d.ctx, u); err != nil && !isRejection(err) {
			d.logger.Debug("telegram: update not handled", "update_id", u.UpdateID, "error", err)
		}
		unlock()
	}
}

// stop refuses new updates and waits for the queued ones to finish. When
// ctx expires first, handlers in flight are cancelled.
func (d *dispatcher) stop(ctx context.Context) error {
	d.closeQueue()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// closeQueue releases blocked submitters, then closes the queue once no
// submit is in progress.
func (d *dispatcher) closeQueue() {
	d.closeOnce.Do(func() { close(d.closing) })
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
}

// laneKey serializes updates per chat. Inline queries have no chat and
// are serialized per user.
func laneKey(u *Update) string {
	switch {
	case u.Message != nil:
		return strconv.FormatInt(u.Message.Chat.ID, 10)
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return strconv.FormatInt(u.CallbackQuery.Message.Chat.ID, 10)
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return "user:" + strconv.FormatInt(u.CallbackQuery.From.ID, 10)
	case u.InlineQuery != nil && u.InlineQuery.From != nil:
		return "user:" + strconv.FormatInt(u.InlineQuery.From.ID, 10)
	}
	return ""
}
