// Package scheduler runs the periodic sweeps inside the server process.
//
// Each job runs once as soon as the scheduler starts and then on its own
// ticker. A job never overlaps with itself: a slow run delays the next tick
// instead of stacking up behind it.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the job goroutines.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

// Start launches every job. Calling Start on a running scheduler is a no-op.
// The jobs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group = &errgroup.Group{}
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn("job disabled: non-positive interval", slog.String("job", job.Name))
			continue
		}
		s.group.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop cancels the jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = group.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled job failed",
			slog.String("job", job.Name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("scheduled job finished",
		slog.String("job", job.Name),
		slog.Duration("duration", time.Since(start)),
	)
}
