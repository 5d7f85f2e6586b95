// Package refresh re-runs the import on a cron schedule in serve mode.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "schedimport/internal/log"
)

// Job is one scheduled import.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner. Overlapping runs are skipped so a slow
// remote calendar cannot pile up imports.
type Scheduler struct {
	cron *cron.Cron
	job  Job
	ctx  context.Context
}

// New parses spec (5-field cron or a descriptor such as "@every 10m") and
// registers job.
func New(spec string, job Job) (*Scheduler, error) {
	s := &Scheduler{job: job, ctx: context.Background()}
	s.cron = cron.New(
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
		cron.WithLogger(cronLogger{}),
	)
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) fire() {
	s.job(s.ctx)
}

// Run starts the schedule and blocks until ctx is canceled, then waits for
// a running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// Next returns the next activation, or the zero time before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own logging to the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
