package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by RunNow for a name that was never registered.
	ErrUnknownJob = errors.New("cron: unknown job")

	// ErrJobBusy is returned by RunNow when the job is already running.
	ErrJobBusy = errors.New("cron: job already running")
)

// entry is a registered job and its single-flight guard.
type entry struct {
	job     Job
	running atomic.Bool
}

// Scheduler runs registered jobs on their cron schedules. A job never
// overlaps itself: a tick that finds the previous run still going is
// skipped, and panics are recovered and logged.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler returns an idle scheduler. Register jobs before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{logger: logger, ctx: ctx, cancel: cancel}
}

func (s *Scheduler) find(name string) *entry {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return e
		}
	}
	return nil
}

// RegisterJob adds j. Names must be unique and the schedule must parse.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(j.Name()) != nil {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	if _, err := NextRun(j.Schedule(), time.Now()); err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}
	s.entries = append(s.entries, &entry{job: j})
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Start begins ticking every registered job.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	names := make(map[cron.EntryID]string, len(s.entries))
	for _, e := range s.entries {
		id, err := c.AddFunc(e.job.Schedule(), func() { s.tick(e) })
		if err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
		names[id] = e.job.Name()
	}
	c.Start()
	s.cron = c

	for _, ce := range c.Entries() {
		s.logger.Debug("cron: job scheduled", "job", names[ce.ID], "next", ce.Next)
	}
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

func (s *Scheduler) tick(e *entry) {
	if err := s.run(s.ctx, e); errors.Is(err, ErrJobBusy) {
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
	}
}

// RunNow runs the named job immediately, outside its schedule. It fails
// with ErrJobBusy while another run of the job is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e := s.find(name)
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrJobBusy
	}
	defer e.running.Store(false)

	name := e.job.Name()
	start := time.Now()
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", name, "took", time.Since(start))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cancel()

	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}

// cronLogger routes the cron library's own messages into slog. Its info
// chatter is demoted to debug.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
