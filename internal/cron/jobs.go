package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Flusher persists pending state. usage.Recorder implements it.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// RollerOver resets counters whose accounting period has ended.
type RollerOver interface {
	Rollover(now time.Time) int
}

// Pruner drops entries idle for longer than maxIdle. session.Store,
// session.History and conversation.Manager implement it.
type Pruner interface {
	Prune(maxIdle time.Duration) int
}

// UsageFlushJob writes changed usage counters to storage.
type UsageFlushJob struct {
	Recorder     Flusher
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "* * * * *"
}

// Compile-time interface check.
var _ Job = (*UsageFlushJob)(nil)

// Name implements Job.
func (j *UsageFlushJob) Name() string { return "usage_flush" }

// Schedule implements Job.
func (j *UsageFlushJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run flushes the recorder.
func (j *UsageFlushJob) Run(ctx context.Context) error {
	n, err := j.Recorder.Flush(ctx)
	if err != nil {
		return fmt.Errorf("cron: usage flush: %w", err)
	}
	if n > 0 {
		j.Logger.Debug("cron: usage flushed", "keys", n)
	}
	return nil
}

// UsageRolloverJob resets daily and monthly counters after midnight even
// for users who stay silent.
type UsageRolloverJob struct {
	Recorder     RollerOver
	Logger       *slog.Logger
	Now          func() time.Time // nil = time.Now
	ScheduleExpr string           // empty = default "1 0 * * *"
}

// Compile-time interface check.
var _ Job = (*UsageRolloverJob)(nil)

// Name implements Job.
func (j *UsageRolloverJob) Name() string { return "usage_rollover" }

// Schedule implements Job.
func (j *UsageRolloverJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "1 0 * * *"
}

// Run rolls every key over to the current period.
func (j *UsageRolloverJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: usage rollover cancelled: %w", ctx.Err())
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	if n := j.Recorder.Rollover(now()); n > 0 {
		j.Logger.Info("cron: usage periods rolled over", "keys", n)
	}
	return nil
}

// PruneJob removes idle entries from a chat state store.
type PruneJob struct {
	Target       string // e.g. "history", "inline_queries"
	Store        Pruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*PruneJob)(nil)

// Name implements Job.
func (j *PruneJob) Name() string { return "prune:" + j.Target }

// Schedule implements Job.
func (j *PruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes entries idle longer than MaxIdle.
func (j *PruneJob) Run(_ context.Context) error {
	if pruned := j.Store.Prune(j.MaxIdle); pruned > 0 {
		j.Logger.Info("cron: pruned idle entries", "target", j.Target, "count", pruned)
	}
	return nil
}
