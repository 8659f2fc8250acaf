package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func chatUpdate(id int, chatID int64) *Update {
	return &Update{UpdateID: id, Message: &Message{Chat: Chat{ID: chatID}, Text: "hi"}}
}

func TestDispatcherSerializesPerChat(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
	)
	handle := func(_ context.Context, u *Update) error {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, u.UpdateID)
		mu.Unlock()
		running.Add(-1)
		return nil
	}

	d := newDispatcher(handle, 1, 10, discardLogger())
	for i := 1; i <= 5; i++ {
		if err := d.submit(context.Background(), chatUpdate(i, 42)); err != nil {
			t.Fatalf("submit() error: %v", err)
		}
	}
	if err := d.stop(context.Background()); err != nil {
		t.Fatalf("stop() error: %v", err)
	}

	if overlap.Load() {
		t.Error("updates of the same chat ran concurrently")
	}
	want := []int{1, 2, 3, 4, 5}
	if len(order) != len(want) {
		t.Fatalf("handled %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("handled %v, want %v", order, want)
		}
	}
}

func TestDispatcherLaneBlocksSameChatAcrossWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		running atomic.Int32
		overlap atomic.Bool
		total   atomic.Int32
	)
	handle := func(_ context.Context, u *Update) error {
		if u.Message.Chat.ID == 1 {
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}
		total.Add(1)
		return nil
	}

	d := newDispatcher(handle, 4, 0, discardLogger())
	for i := range 20 {
		chat := int64(1)
		if i%2 == 1 {
			chat = 2
		}
		if err := d.submit(context.Background(), chatUpdate(i, chat)); err != nil {
			t.Fatalf("submit() error: %v", err)
		}
	}
	if err := d.stop(context.Background()); err != nil {
		t.Fatalf("stop() error: %v", err)
	}

	if overlap.Load() {
		t.Error("updates of the same chat ran concurrently on different workers")
	}
	if got := total.Load(); got != 20 {
		t.Errorf("handled %d updates, want 20", got)
	}
}

func TestDispatcherSubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newDispatcher(func(context.Context, *Update) error { return nil }, 2, 1, discardLogger())
	if err := d.stop(context.Background()); err != nil {
		t.Fatalf("stop() error: %v", err)
	}
	if err := d.stop(context.Background()); err != nil {
		t.Fatalf("second stop() error: %v", err)
	}
	if err := d.submit(context.Background(), chatUpdate(1, 1)); !errors.Is(err, errDispatcherStopped) {
		t.Errorf("submit() error = %v, want errDispatcherStopped", err)
	}
}

func TestDispatcherStopReleasesBlockedSubmit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handle := func(context.Context, *Update) error {
		started <- struct{}{}
		<-release
		return nil
	}
	d := newDispatcher(handle, 1, 0, discardLogger())

	// The worker takes the first update and blocks, so the second submit
	// waits for queue space.
	if err := d.submit(context.Background(), chatUpdate(1, 1)); err != nil {
		t.Fatalf("submit() error: %v", err)
	}
	<-started

	errc := make(chan error, 1)
	go func() { errc <- d.submit(context.Background(), chatUpdate(2, 1)) }()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- d.stop(context.Background()) }()

	select {
	case err := <-errc:
		if !errors.Is(err, errDispatcherStopped) {
			t.Errorf("blocked submit() error = %v, want errDispatcherStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submit was not released by stop")
	}

	close(release)
	if err := <-stopped; err != nil {
		t.Errorf("stop() error: %v", err)
	}
}

func TestDispatcherSubmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d := newDispatcher(func(context.Context, *Update) error {
		started <- struct{}{}
		<-release
		return nil
	}, 1, 0, discardLogger())

	if err := d.submit(context.Background(), chatUpdate(1, 1)); err != nil {
		t.Fatalf("submit() error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.submit(ctx, chatUpdate(2, 1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("submit() error = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	if err := d.stop(context.Background()); err != nil {
		t.Errorf("stop() error: %v", err)
	}
}

func TestDispatcherStopCancelsHandlersOnTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	cancelled := make(chan struct{})
	d := newDispatcher(func(ctx context.Context, _ *Update) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, 1, 1, discardLogger())

	if err := d.submit(context.Background(), chatUpdate(1, 1)); err != nil {
		t.Fatalf("submit() error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("stop() error = %v, want context.DeadlineExceeded", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("the handler in flight should have been cancelled")
	}
}
