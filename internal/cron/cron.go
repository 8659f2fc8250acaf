// Package cron runs the bot's periodic housekeeping: flushing usage
// counters to storage, rolling usage periods over, and pruning idle chat
// state.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one housekeeping task run on a schedule.
type Job interface {
	// Name identifies the job in logs and in RunNow. Names are unique per
	// scheduler.
	Name() string

	// Schedule is a standard five-field cron expression.
	Schedule() string

	// Run does one pass. It must return promptly once ctx is done.
	Run(ctx context.Context) error
}

// scheduleParser accepts minute, hour, day-of-month, month and day-of-week.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun parses expr and returns the first activation strictly after t.
func NextRun(expr string, t time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron: schedule %q: %w", expr, err)
	}
	return sched.Next(t), nil
}
