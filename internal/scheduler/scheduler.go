// Package scheduler runs periodic background jobs such as the low-stock scan.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named periodic task. Run receives a context that is cancelled
// when the scheduler stops.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers jobs on a fresh cron runner without starting it. Jobs with an
// empty schedule are skipped. Overlapping runs of the same job are skipped.
func New(jobs ...Job) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, j := range jobs {
		if j.Schedule == "" {
			slog.Info("job disabled", "job", j.Name)
			continue
		}
		if _, err := s.cron.AddFunc(j.Schedule, s.wrap(j)); err != nil {
			cancel()
			return nil, fmt.Errorf("registering job %s: %w", j.Name, err)
		}
		slog.Info("job scheduled", "job", j.Name, "schedule", j.Schedule)
	}
	return s, nil
}

func (s *Scheduler) wrap(j Job) func() {
	return func() {
		start := time.Now()
		if err := j.Run(s.ctx); err != nil {
			slog.Error("job failed", "job", j.Name, "error", err, "duration", time.Since(start))
			return
		}
		slog.Debug("job finished", "job", j.Name, "duration", time.Since(start))
	}
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out")
	}
}
