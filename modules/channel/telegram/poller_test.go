package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pollServer answers getUpdates with the scripted responses in turn, then
// with empty batches after a short delay.
type pollServer struct {
	t       *testing.T
	mu      sync.Mutex
	script  []func(http.ResponseWriter)
	offsets []int
	calls   atomic.Int32
}

func newPollServer(t *testing.T, script ...func(http.ResponseWriter)) (*pollServer, *Client) {
	ps := &pollServer{t: t, script: script}
	srv := httptest.NewServer(ps)
	t.Cleanup(srv.Close)
	return ps, NewClient("TOKEN", srv.URL, 0)
}

func (ps *pollServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req GetUpdatesRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ps.mu.Lock()
	ps.offsets = append(ps.offsets, req.Offset)
	var step func(http.ResponseWriter)
	if len(ps.script) > 0 {
		step, ps.script = ps.script[0], ps.script[1:]
	}
	ps.mu.Unlock()
	ps.calls.Add(1)

	if step != nil {
		step(w)
		return
	}
	select {
	case <-r.Context().Done():
	case <-time.After(20 * time.Millisecond):
	}
	writeJSON(ps.t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
}

func (ps *pollServer) waitCalls(n int32) {
	deadline := time.Now().Add(2 * time.Second)
	for ps.calls.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func batch(t *testing.T, updates ...Update) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		writeJSON(t, w, APIResponse[[]Update]{OK: true, Result: updates})
	}
}

func failure(t *testing.T, status int, retryAfter int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		resp := APIResponse[json.RawMessage]{OK: false, ErrorCode: status, Description: http.StatusText(status)}
		if retryAfter > 0 {
			resp.Parameters = &ResponseParameters{RetryAfter: retryAfter}
		}
		w.WriteHeader(status)
		writeJSON(t, w, resp)
	}
}

func textUpdate(id int, text string) Update {
	return Update{UpdateID: id, Message: &Message{MessageID: id, From: &User{ID: 100}, Chat: Chat{ID: 200, Type: ChatTypePrivate}, Text: text}}
}

func TestPollerReceivesUpdates(t *testing.T) {
	ps, client := newPollServer(t, batch(t, textUpdate(1, "hello"), textUpdate(2, "again")))

	var mu sync.Mutex
	var received []string
	poller := NewPoller(client, func(_ context.Context, u *Update) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, u.Message.Text)
		return nil
	}, discardLogger(), Config{AllowedUpdates: []string{"message"}})

	poller.Start()
	ps.waitCalls(2)
	poller.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(received, []string{"hello", "again"}) {
		t.Fatalf("received = %v, want [hello again]", received)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.offsets) < 2 || ps.offsets[0] != 0 || ps.offsets[1] != 3 {
		t.Errorf("offsets = %v, want 0 then 3", ps.offsets)
	}
}

func TestPollerStopIsIdempotent(t *testing.T) {
	api := newFakeAPI(t)
	poller := NewPoller(api.client(), func(context.Context, *Update) error { return nil }, discardLogger(), Config{})

	poller.Start()
	poller.Stop()
	poller.Stop()
}

func TestPollerStopWithoutStart(t *testing.T) {
	poller := NewPoller(NewClient("TOKEN", "http://127.0.0.1:1", 0), nil, discardLogger(), Config{})
	poller.Stop()
}

func TestPollerPausesAfterConsecutiveErrors(t *testing.T) {
	script := make([]func(http.ResponseWriter), 0, maxConsecutivePollingErrors+1)
	for range maxConsecutivePollingErrors + 1 {
		script = append(script, failure(t, http.StatusBadGateway, 0))
	}
	ps, client := newPollServer(t, script...)

	poller := NewPoller(client, func(context.Context, *Update) error { return nil }, discardLogger(), Config{})
	var waits []time.Duration
	var mu sync.Mutex
	poller.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return make(chan time.Time) // never fires
	}

	poller.Start()
	ps.waitCalls(maxConsecutivePollingErrors)
	time.Sleep(50 * time.Millisecond)
	got := ps.calls.Load()
	poller.Stop()

	if got != maxConsecutivePollingErrors {
		t.Errorf("calls = %d, want %d before the pause", got, maxConsecutivePollingErrors)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(waits) != 1 || waits[0] != errorPauseDuration {
		t.Errorf("waits = %v, want one pause of %v", waits, errorPauseDuration)
	}
}

func TestPollerHonorsFloodControl(t *testing.T) {
	ps, client := newPollServer(t, failure(t, http.StatusTooManyRequests, 7), batch(t, textUpdate(9, "late")))

	var submitted atomic.Int32
	poller := NewPoller(client, func(context.Context, *Update) error {
		submitted.Add(1)
		return nil
	}, discardLogger(), Config{})
	var waited atomic.Int64
	poller.after = func(d time.Duration) <-chan time.Time {
		waited.Store(int64(d))
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}

	poller.Start()
	ps.waitCalls(3)
	poller.Stop()

	if time.Duration(waited.Load()) != 7*time.Second {
		t.Errorf("waited %v, want the 7s retry_after", time.Duration(waited.Load()))
	}
	if submitted.Load() != 1 {
		t.Errorf("submitted = %d, want 1 after the wait", submitted.Load())
	}
}

func TestPollerLogsDroppedUpdates(t *testing.T) {
	ps, client := newPollServer(t, batch(t, Update{UpdateID: 5, Message: &Message{Text: "x"}}))

	var submitted atomic.Int32
	poller := NewPoller(client, func(context.Context, *Update) error {
		submitted.Add(1)
		return errDispatcherStopped
	}, discardLogger(), Config{})

	poller.Start()
	ps.waitCalls(2)
	poller.Stop()

	if submitted.Load() != 1 {
		t.Errorf("submitted = %d, want 1", submitted.Load())
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.offsets[1] != 6 {
		t.Errorf("offset after a dropped update = %d, want 6", ps.offsets[1])
	}
}
