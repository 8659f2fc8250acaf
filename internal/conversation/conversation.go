// Package conversation runs multi-step dialogs as small state machines.
//
// A Flow is built from entry points, numbered states and fallbacks. Each
// step handles one request and returns the number of the state that
// handles the next request from the same key, or End. A Manager tracks the
// active state per key (typically chat and user) and routes requests.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/tgpt/internal/session"
)

// End finishes a conversation.
const End = -1

// ErrUnknownState is returned when a step moves to a state the flow does
// not define. The conversation is ended.
var ErrUnknownState = errors.New("conversation: unknown state")

// Data is the scratch space of one conversation, kept between steps.
type Data map[string]string

// Step handles one request and returns the next state.
type Step[R any] func(ctx context.Context, req R, data Data) (next int, err error)

// Match selects the requests an entry point or fallback reacts to.
type Match[R any] func(req R) bool

type route[R any] struct {
	match Match[R]
	step  Step[R]
}

// Flow describes one conversation.
type Flow[R any] struct {
	name      string
	entries   []route[R]
	states    map[int]Step[R]
	fallbacks []route[R]
}

// NewFlow creates an empty flow.
func NewFlow[R any](name string) *Flow[R] {
	return &Flow[R]{name: name, states: make(map[int]Step[R])}
}

// Name returns the flow name.
func (f *Flow[R]) Name() string { return f.name }

// Entry adds a request that starts the conversation.
func (f *Flow[R]) Entry(match Match[R], step Step[R]) *Flow[R] {
	f.entries = append(f.entries, route[R]{match: match, step: step})
	return f
}

// State sets the step handling requests while the conversation is in state n.
func (f *Flow[R]) State(n int, step Step[R]) *Flow[R] {
	f.states[n] = step
	return f
}

// Fallback adds a request that is handled in any state before the state's
// own step, for example a cancel command.
func (f *Flow[R]) Fallback(match Match[R], step Step[R]) *Flow[R] {
	f.fallbacks = append(f.fallbacks, route[R]{match: match, step: step})
	return f
}

// States returns the defined state numbers.
func (f *Flow[R]) States() []int {
	out := make([]int, 0, len(f.states))
	for n := range f.states {
		out = append(out, n)
	}
	return out
}

// active is the position of one key inside a flow.
type active[R any] struct {
	flow  *Flow[R]
	state int
	data  Data
}

// Manager routes requests to the flows. It is safe for concurrent use;
// requests for the same key are serialized.
type Manager[R any] struct {
	key    func(R) string
	flows  []*Flow[R]
	active *session.Store[*active[R]]
	locks  *session.Lanes
	logger *slog.Logger

	mu sync.RWMutex
}

// NewManager creates a Manager keyed by key.
func NewManager[R any](key func(R) string, logger *slog.Logger, flows ...*Flow[R]) *Manager[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager[R]{
		key:    key,
		flows:  flows,
		active: session.NewStore[*active[R]](),
		locks:  session.NewLanes(),
		logger: logger,
	}
}

// Add registers another flow.
func (m *Manager[R]) Add(f *Flow[R]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows = append(m.flows, f)
}

// Handle routes req. It reports false when req neither continues an active
// conversation nor starts one, leaving it to the regular handlers.
func (m *Manager[R]) Handle(ctx context.Context, req R) (bool, error) {
	key := m.key(req)
	defer m.locks.Lock(key)()

	if cur, ok := m.active.Get(key); ok {
		return true, m.continueFlow(ctx, key, cur, req)
	}

	m.mu.RLock()
	flows := m.flows
	m.mu.RUnlock()

	for _, f := range flows {
		for _, e := range f.entries {
			if !e.match(req) {
				continue
			}
			cur := &active[R]{flow: f, data: Data{}}
			m.logger.Debug("conversation: started", "flow", f.name, "key", key)
			return true, m.run(ctx, key, cur, e.step, req)
		}
	}
	return false, nil
}

func (m *Manager[R]) continueFlow(ctx context.Context, key string, cur *active[R], req R) error {
	for _, fb := range cur.flow.fallbacks {
		if fb.match(req) {
			return m.run(ctx, key, cur, fb.step, req)
		}
	}
	step, ok := cur.flow.states[cur.state]
	if !ok {
		m.active.Delete(key)
		return fmt.Errorf("%w: %s/%d", ErrUnknownState, cur.flow.name, cur.state)
	}
	return m.run(ctx, key, cur, step, req)
}

// run executes step and stores the resulting position. A failing step
// ends the conversation.
func (m *Manager[R]) run(ctx context.Context, key string, cur *active[R], step Step[R], req R) error {
	next, err := step(ctx, req, cur.data)
	if err != nil {
		m.active.Delete(key)
		return fmt.Errorf("conversation %s: %w", cur.flow.name, err)
	}
	if next == End {
		m.active.Delete(key)
		m.logger.Debug("conversation: ended", "flow", cur.flow.name, "key", key)
		return nil
	}
	if _, ok := cur.flow.states[next]; !ok {
		m.active.Delete(key)
		return fmt.Errorf("%w: %s/%d", ErrUnknownState, cur.flow.name, next)
	}
	cur.state = next
	m.active.Set(key, cur)
	return nil
}

// Active reports the flow name and state of key, if a conversation is running.
func (m *Manager[R]) Active(key string) (flow string, state int, ok bool) {
	cur, ok := m.active.Get(key)
	if !ok {
		return "", 0, false
	}
	return cur.flow.name, cur.state, true
}

// Cancel ends the conversation of key, if any.
func (m *Manager[R]) Cancel(key string) {
	m.active.Delete(key)
}

// Prune ends conversations idle for longer than maxIdle.
func (m *Manager[R]) Prune(maxIdle time.Duration) int {
	return m.active.Prune(maxIdle)
}
