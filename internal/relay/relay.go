// Package relay paces a live LLM token stream into a bounded sequence of
// chat message creates and edits.
//
// A Relay owns its RelayState for the duration of one Run. Edits are
// coalesced by the Cutoff policy, transient send failures are absorbed with
// growing backoff, and text longer than the platform limit is split across
// several messages, each of which ends up holding exactly its share of the
// full response.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/telemetry"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxMessageLength = 4096
	DefaultBackoffStep      = 5
	DefaultTimeoutPause     = 500 * time.Millisecond
	DefaultEditPause        = 10 * time.Millisecond
	DefaultMaxRetries       = 10
)

// MessageID identifies a message created through a Sender.
type MessageID string

// Sender is the messaging endpoint the relay writes to.
//
// final is set on the last write of a message; adapters use it to switch
// on rich formatting. Edit must return ErrNotModified when the text is
// unchanged, a *RateLimitedError or ErrTimeout for transient failures, and
// any other error for fatal ones.
type Sender interface {
	Create(ctx context.Context, text string, final bool) (MessageID, error)
	Edit(ctx context.Context, id MessageID, text string, final bool) error
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config controls a Relay.
type Config struct {
	// MaxMessageLength is the per-message size ceiling in characters.
	MaxMessageLength int

	// IsGroup selects the stricter group-chat cutoff thresholds.
	IsGroup bool

	// BackoffStep is added to the cutoff after each retriable failure.
	BackoffStep int

	// TimeoutPause is the wait after a timed out send.
	TimeoutPause time.Duration

	// EditPause is the wait after each successful intermediate edit.
	EditPause time.Duration

	// MaxRetries caps consecutive retriable failures. Exceeding it fails
	// the run with ErrRetryBudgetExhausted.
	MaxRetries int

	// Sleep replaces time-based waiting, mostly for tests.
	Sleep SleepFunc

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = DefaultBackoffStep
	}
	if c.TimeoutPause <= 0 {
		c.TimeoutPause = DefaultTimeoutPause
	}
	if c.EditPause < 0 {
		c.EditPause = 0
	} else if c.EditPause == 0 {
		c.EditPause = DefaultEditPause
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// State is the lifecycle stage of a relay run.
type State int

// Relay states.
const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RelayState is the mutable state of one run.
type RelayState struct {
	State State

	// Accumulated is the text of the open message group.
	Accumulated string

	// LastSentLength is the length of Accumulated at the last successful write.
	LastSentLength int

	// Backoff is the extra cutoff accrued from retriable failures.
	Backoff int

	// ActiveMessage is the message holding the open group. Valid only
	// when HasActive is set, which happens after a successful create.
	ActiveMessage MessageID
	HasActive     bool

	// ChunkIndex counts the groups closed by the size ceiling.
	ChunkIndex int
}

// Result summarizes a finished run.
type Result struct {
	Text        string
	Messages    []MessageID
	TotalTokens int
	Edits       int
	Retries     int
}

// Relay streams one LLM response into chat messages. A Relay is not safe
// for concurrent use; create one per response.
type Relay struct {
	sender Sender
	cfg    Config

	state       RelayState
	committed   strings.Builder
	result      Result
	consecutive int
}

// New creates a Relay writing through sender.
func New(sender Sender, cfg Config) *Relay {
	return &Relay{
		sender: sender,
		cfg:    cfg.withDefaults(),
	}
}

// State returns a copy of the current relay state.
func (r *Relay) State() RelayState {
	return r.state
}

// Run consumes chunks until a final chunk arrives or the channel closes.
//
// The returned Result is valid even when err is non-nil and lists the
// messages written so far. Cancelling ctx stops consumption and leaves the
// last written message as it is.
func (r *Relay) Run(ctx context.Context, chunks <-chan provider.StreamChunk) (res Result, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "relay.run",
		attribute.Bool("relay.group", r.cfg.IsGroup),
		attribute.Int("relay.max_length", r.cfg.MaxMessageLength),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("relay.messages", len(res.Messages)),
			attribute.Int("relay.edits", res.Edits),
			attribute.Int("relay.retries", res.Retries),
		)
		telemetry.EndSpan(span, err)
		telemetry.Since(telemetry.RelayDuration.WithLabelValues(r.state.State.String()), start)
	}()

	r.state = RelayState{State: StateStreaming}

	for {
		select {
		case <-ctx.Done():
			return r.fail(ctx.Err())

		case chunk, ok := <-chunks:
			if !ok {
				return r.finish(ctx)
			}
			if chunk.Err != nil {
				return r.fail(&UpstreamStreamError{Err: chunk.Err})
			}
			if chunk.Usage != nil {
				r.result.TotalTokens = chunk.Usage.TotalTokens
			}
			if chunk.Final() {
				r.state.Accumulated += chunk.Content
				return r.finish(ctx)
			}
			if err := r.step(ctx, chunk.Content); err != nil {
				return r.fail(err)
			}
		}
	}
}

// step appends delta and writes when the growth exceeds the cutoff.
func (r *Relay) step(ctx context.Context, delta string) error {
	r.state.Accumulated += delta
	if strings.TrimSpace(r.state.Accumulated) == "" {
		return nil
	}

	n := length(r.state.Accumulated)
	if n > r.cfg.MaxMessageLength {
		return r.overflow(ctx)
	}
	if !r.state.HasActive {
		return r.create(ctx)
	}

	grown := n - r.state.LastSentLength
	if grown < 0 {
		grown = -grown
	}
	if grown <= Cutoff(n, r.cfg.IsGroup)+r.state.Backoff {
		return nil
	}
	return r.edit(ctx)
}

// overflow closes every full group of the open text and opens a new
// message for the remainder.
func (r *Relay) overflow(ctx context.Context) error {
	pieces := Chunk(r.state.Accumulated, r.cfg.MaxMessageLength)
	last := pieces[len(pieces)-1]

	for i, piece := range pieces[:len(pieces)-1] {
		if err := r.deliverFinal(ctx, piece); err != nil {
			return err
		}
		r.committed.WriteString(piece)
		r.state.Accumulated = strings.Join(pieces[i+1:], "")
		r.state.ChunkIndex++
		r.state.HasActive = false
		r.state.ActiveMessage = ""
	}

	r.cfg.Logger.Debug("relay: message size ceiling reached, continuing in a new message",
		"chunk_index", r.state.ChunkIndex,
		"max_length", r.cfg.MaxMessageLength,
	)

	r.state.Accumulated = last
	r.state.LastSentLength = 0
	if strings.TrimSpace(last) == "" {
		return nil
	}
	return r.create(ctx)
}

// create opens the message for the current group. A retriable failure
// leaves no active message so the next chunk tries again.
func (r *Relay) create(ctx context.Context) error {
	text := r.state.Accumulated
	id, err := r.sender.Create(ctx, text, false)
	if err != nil {
		return r.absorb(ctx, "create", err)
	}
	telemetry.RelayOperations.WithLabelValues("create", "ok").Inc()
	r.activate(id, text)
	return nil
}

// edit pushes the open group text into the active message.
func (r *Relay) edit(ctx context.Context) error {
	text := r.state.Accumulated
	err := r.sender.Edit(ctx, r.state.ActiveMessage, text, false)
	switch {
	case err == nil:
		telemetry.RelayOperations.WithLabelValues("edit", "ok").Inc()
	case errors.Is(err, ErrNotModified):
		telemetry.RelayOperations.WithLabelValues("edit", "not_modified").Inc()
	default:
		return r.absorb(ctx, "edit", err)
	}
	r.result.Edits++
	r.consecutive = 0
	r.state.LastSentLength = length(text)
	return r.cfg.Sleep(ctx, r.cfg.EditPause)
}

// absorb handles a failed intermediate write. Retriable failures grow the
// backoff and wait; the next successful write carries the superset text.
func (r *Relay) absorb(ctx context.Context, op string, err error) error {
	if !IsRetriable(err) {
		telemetry.RelayOperations.WithLabelValues(op, "fatal").Inc()
		return &FatalSendError{Op: op, Err: err}
	}
	return r.retry(ctx, op, err)
}

// retry accounts one retriable failure and waits the requested delay.
func (r *Relay) retry(ctx context.Context, op string, err error) error {
	telemetry.RelayOperations.WithLabelValues(op, "retried").Inc()
	r.result.Retries++
	r.consecutive++
	r.state.Backoff += r.cfg.BackoffStep
	if r.consecutive > r.cfg.MaxRetries {
		return errors.Join(ErrRetryBudgetExhausted, err)
	}

	delay := retryDelay(err, r.cfg.TimeoutPause)
	r.cfg.Logger.Debug("relay: transient send failure, backing off",
		"op", op,
		"error", err,
		"delay", delay,
		"backoff", r.state.Backoff,
		"consecutive", r.consecutive,
	)
	return r.cfg.Sleep(ctx, delay)
}

// deliverFinal writes text as the final content of the active message, or
// of a new message when none is active, retrying transient failures until
// the retry budget runs out.
func (r *Relay) deliverFinal(ctx context.Context, text string) error {
	for {
		var err error
		op := "edit"
		if r.state.HasActive {
			err = r.sender.Edit(ctx, r.state.ActiveMessage, text, true)
			if errors.Is(err, ErrNotModified) {
				telemetry.RelayOperations.WithLabelValues(op, "not_modified").Inc()
				err = nil
			}
			if err == nil {
				r.result.Edits++
			}
		} else {
			op = "create"
			var id MessageID
			id, err = r.sender.Create(ctx, text, true)
			if err == nil {
				r.activate(id, text)
			}
		}

		if err == nil {
			telemetry.RelayOperations.WithLabelValues(op, "ok").Inc()
			r.consecutive = 0
			r.state.LastSentLength = length(text)
			return nil
		}
		if !IsRetriable(err) {
			telemetry.RelayOperations.WithLabelValues(op, "fatal").Inc()
			return &FatalSendError{Op: op, Err: err}
		}
		if err := r.retry(ctx, op, err); err != nil {
			return err
		}
	}
}

// activate records a freshly created message as the active one.
func (r *Relay) activate(id MessageID, text string) {
	r.state.ActiveMessage = id
	r.state.HasActive = true
	r.state.LastSentLength = length(text)
	r.result.Messages = append(r.result.Messages, id)
	r.consecutive = 0
}

// finish issues the final write of the open group.
func (r *Relay) finish(ctx context.Context) (Result, error) {
	open := r.state.Accumulated
	for length(open) > r.cfg.MaxMessageLength {
		if err := r.overflow(ctx); err != nil {
			return r.fail(err)
		}
		open = r.state.Accumulated
	}

	if strings.TrimSpace(open) != "" {
		if err := r.deliverFinal(ctx, open); err != nil {
			return r.fail(err)
		}
	}

	r.committed.WriteString(open)
	r.state.State = StateCompleted
	r.result.Text = r.committed.String()
	return r.result, nil
}

// fail moves the run to StateFailed and returns the partial result.
func (r *Relay) fail(err error) (Result, error) {
	r.state.State = StateFailed
	r.result.Text = r.committed.String() + r.state.Accumulated
	r.cfg.Logger.Warn("relay: run failed",
		"error", err,
		"messages", len(r.result.Messages),
		"retries", r.result.Retries,
	)
	return r.result, err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
