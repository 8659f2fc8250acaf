// Package crontest provides recording fakes for the targets of the
// housekeeping jobs.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/tgpt/internal/cron"
)

var (
	_ cron.Job        = (*Job)(nil)
	_ cron.Flusher    = (*Recorder)(nil)
	_ cron.RollerOver = (*Recorder)(nil)
	_ cron.Pruner     = (*Store)(nil)
)

// Job is a cron.Job with a fixed name and schedule that counts its runs.
type Job struct {
	ID   string
	Expr string
	Err  error

	mu   sync.Mutex
	runs int
}

func (j *Job) Name() string     { return j.ID }
func (j *Job) Schedule() string { return j.Expr }

func (j *Job) Run(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return j.Err
}

// Runs reports how many times Run was called.
func (j *Job) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// Recorder stands in for the usage recorder. Flush reports Dirty keys
// written, or FlushErr; Rollover reports Expired keys reset.
type Recorder struct {
	Dirty    int
	FlushErr error
	Expired  int

	mu       sync.Mutex
	flushes  int
	rolledAt []time.Time
}

func (r *Recorder) Flush(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	if r.FlushErr != nil {
		return 0, r.FlushErr
	}
	return r.Dirty, nil
}

func (r *Recorder) Rollover(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolledAt = append(r.rolledAt, now)
	return r.Expired
}

// Flushes reports how many times Flush was called.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Rollovers returns the times Rollover was called with.
func (r *Recorder) Rollovers() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.rolledAt...)
}

// Store stands in for an idle-pruned chat state store.
type Store struct {
	Pruned int

	mu    sync.Mutex
	idles []time.Duration
}

func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idles = append(s.idles, maxIdle)
	return s.Pruned
}

// Calls returns the maxIdle of each Prune call.
func (s *Store) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.idles...)
}
