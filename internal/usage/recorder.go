package usage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/flemzord/tgpt/internal/telemetry"
)

// Store persists counters between restarts.
type Store interface {
	Load(ctx context.Context) (map[string]Counters, error)
	Save(ctx context.Context, counters map[string]Counters) error
}

// Config configures a Recorder.
type Config struct {
	Prices Prices

	// GuestPool enables the shared counters charged for non-allowed users.
	GuestPool bool
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for swallowed bookkeeping errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithStore sets the persistence backend used by Restore and Flush.
func WithStore(s Store) Option {
	return func(r *Recorder) { r.store = s }
}

// entry guards the counters of one key. Updates to different keys never
// contend; updates to the same key are serialized.
type entry struct {
	mu    sync.Mutex
	c     Counters
	dirty bool
}

// Recorder accumulates usage counters per user id. It is safe for
// concurrent use. Recording never fails: invalid amounts are logged and
// dropped so bookkeeping cannot break a reply that was already delivered.
type Recorder struct {
	mu      sync.RWMutex
	entries map[string]*entry

	prices    Prices
	guestPool bool
	store     Store
	now       func() time.Time
	logger    *slog.Logger
}

// NewRecorder creates an empty Recorder.
func NewRecorder(cfg Config, opts ...Option) *Recorder {
	r := &Recorder{
		entries:   make(map[string]*entry),
		prices:    cfg.Prices.withDefaults(),
		guestPool: cfg.GuestPool,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prices returns the prices in effect.
func (r *Recorder) Prices() Prices {
	return r.prices
}

// GuestPool reports whether the guest pool is enabled.
func (r *Recorder) GuestPool() bool {
	return r.guestPool
}

// AddChatTokens records a chat exchange of tokens for userID, and once for
// the guest pool when guest is set.
func (r *Recorder) AddChatTokens(userID, name string, tokens int, guest bool) {
	if tokens < 0 {
		r.logger.Warn("usage: negative token count ignored", "user_id", userID, "tokens", tokens)
		return
	}
	cost := r.prices.Tokens(tokens)
	r.apply(userID, name, guest, func(c *Counters) {
		c.TokensToday += tokens
		c.TokensMonth += tokens
		c.TokensAllTime += tokens
		addCost(c, cost)
	})

	telemetry.UsageTokens.WithLabelValues("user").Add(float64(tokens))
	if r.pooled(guest) {
		telemetry.UsageTokens.WithLabelValues("guest").Add(float64(tokens))
	}
	r.observeCost(cost, guest)
}

// AddImage records one generated image of the given size.
func (r *Recorder) AddImage(userID, name, size string, guest bool) {
	cost, ok := r.prices.Image(size)
	if !ok {
		r.logger.Warn("usage: unknown image size, recorded without cost", "user_id", userID, "size", size)
	}
	r.apply(userID, name, guest, func(c *Counters) {
		c.ImagesToday++
		c.ImagesMonth++
		c.ImagesAllTime++
		addCost(c, cost)
	})
	r.observeCost(cost, guest)
}

// AddTranscription records seconds of transcribed audio.
func (r *Recorder) AddTranscription(userID, name string, seconds float64, guest bool) {
	if seconds < 0 {
		r.logger.Warn("usage: negative duration ignored", "user_id", userID, "seconds", seconds)
		return
	}
	cost := r.prices.Transcription(seconds)
	r.apply(userID, name, guest, func(c *Counters) {
		c.TranscribeSecondsToday += seconds
		c.TranscribeSecondsMonth += seconds
		c.TranscribeSecondsAllTime += seconds
		addCost(c, cost)
	})
	telemetry.TranscribedSeconds.Add(seconds)
	r.observeCost(cost, guest)
}

func (r *Recorder) pooled(guest bool) bool {
	return guest && r.guestPool
}

// observeCost exports cost, once more under "guest" when it also lands in
// the guest pool.
func (r *Recorder) observeCost(cost float64, guest bool) {
	telemetry.UsageCost.WithLabelValues("user").Add(cost)
	if r.pooled(guest) {
		telemetry.UsageCost.WithLabelValues("guest").Add(cost)
	}
}

func addCost(c *Counters, cost float64) {
	c.CostToday = round(c.CostToday + cost)
	c.CostMonth = round(c.CostMonth + cost)
	c.CostAllTime = round(c.CostAllTime + cost)
}

// apply runs update on the user's counters and, for guests, on the pool.
func (r *Recorder) apply(userID, name string, guest bool, update func(*Counters)) {
	if userID == "" {
		r.logger.Warn("usage: record without user id ignored")
		return
	}
	now := r.now()
	r.update(userID, name, now, update)
	if r.pooled(guest) && userID != GuestKey {
		r.update(GuestKey, "", now, update)
	}
}

func (r *Recorder) update(key, name string, now time.Time, update func(*Counters)) {
	e := r.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.c.rollover(now)
	if name != "" {
		e.c.Name = name
	}
	update(&e.c)
	e.dirty = true
}

// entry returns the entry for key, creating it on first use.
func (r *Recorder) entry(key string) *entry {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e
	}
	e = &entry{}
	r.entries[key] = e
	return e
}

// Snapshot returns the current counters of key, rolled over to today.
// Unknown keys return zero counters.
func (r *Recorder) Snapshot(key string) Counters {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		var c Counters
		c.rollover(r.now())
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c.rollover(r.now()) {
		e.dirty = true
	}
	return e.c
}

// All returns a copy of every key's counters.
func (r *Recorder) All() map[string]Counters {
	r.mu.RLock()
	entries := maps.Clone(r.entries)
	r.mu.RUnlock()

	out := make(map[string]Counters, len(entries))
	for key, e := range entries {
		e.mu.Lock()
		out[key] = e.c
		e.mu.Unlock()
	}
	return out
}

// Rollover resets the daily and monthly counters of every key whose period
// has ended and returns how many keys changed.
func (r *Recorder) Rollover(now time.Time) int {
	r.mu.RLock()
	entries := maps.Clone(r.entries)
	r.mu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.c.rollover(now) {
			e.dirty = true
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Restore loads persisted counters, replacing in-memory ones with the same key.
func (r *Recorder) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	loaded, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("usage: restoring counters: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, c := range loaded {
		r.entries[key] = &entry{c: c}
	}
	r.logger.Info("usage: counters restored", "keys", len(loaded))
	return nil
}

// Flush saves the counters changed since the last flush. It returns the
// number of keys written.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	r.mu.RLock()
	entries := maps.Clone(r.entries)
	r.mu.RUnlock()

	dirty := make(map[string]Counters)
	for key, e := range entries {
		e.mu.Lock()
		if e.dirty {
			dirty[key] = e.c
			e.dirty = false
		}
		e.mu.Unlock()
	}
	if len(dirty) == 0 {
		return 0, nil
	}

	if err := r.store.Save(ctx, dirty); err != nil {
		r.markDirty(dirty)
		return 0, fmt.Errorf("usage: flushing counters: %w", err)
	}
	return len(dirty), nil
}

// markDirty flags keys again after a failed save.
func (r *Recorder) markDirty(keys map[string]Counters) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range keys {
		if e, ok := r.entries[key]; ok {
			e.mu.Lock()
			e.dirty = true
			e.mu.Unlock()
		}
	}
}
