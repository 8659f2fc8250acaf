// Package relaytest provides test doubles for the relay package.
package relaytest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/flemzord/tgpt/internal/relay"
)

// Call records one Sender invocation.
type Call struct {
	Op    string // "create" or "edit"
	ID    relay.MessageID
	Text  string
	Final bool
}

// Sender is a recording relay.Sender. Fail, when set, is consulted before
// each call; a non-nil error is returned without recording the call.
type Sender struct {
	Fail func(call Call, attempt int) error

	mu       sync.Mutex
	calls    []Call
	attempts int
	nextID   int
	texts    map[relay.MessageID]string
}

// Create records a create call and returns a sequential message ID.
func (s *Sender) Create(_ context.Context, text string, final bool) (relay.MessageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := Call{Op: "create", Text: text, Final: final}
	if err := s.check(call); err != nil {
		return "", err
	}
	s.nextID++
	call.ID = relay.MessageID(strconv.Itoa(s.nextID))
	s.calls = append(s.calls, call)
	if s.texts == nil {
		s.texts = make(map[relay.MessageID]string)
	}
	s.texts[call.ID] = text
	return call.ID, nil
}

// Edit records an edit call. Editing with the current text returns
// relay.ErrNotModified, as Telegram does.
func (s *Sender) Edit(_ context.Context, id relay.MessageID, text string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := Call{Op: "edit", ID: id, Text: text, Final: final}
	if err := s.check(call); err != nil {
		return err
	}
	s.calls = append(s.calls, call)
	if s.texts[id] == text {
		return relay.ErrNotModified
	}
	s.texts[id] = text
	return nil
}

func (s *Sender) check(call Call) error {
	s.attempts++
	if s.Fail == nil {
		return nil
	}
	return s.Fail(call, s.attempts)
}

// Calls returns the recorded successful calls in order.
func (s *Sender) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Text returns the current text of message id.
func (s *Sender) Text(id relay.MessageID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[id]
}

// Sleeper records requested sleeps without waiting.
type Sleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep records d and returns immediately unless ctx is done.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns the recorded durations.
func (s *Sleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}

// Total returns the sum of the recorded durations.
func (s *Sleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Sleeps() {
		total += d
	}
	return total
}
