package application

import (
	"context"
	"log"
	"time"
)

// Scheduler drives the pipeline on a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler constructs a Scheduler. Intervals below one second fall back
// to one minute.
func NewScheduler(runner *Runner, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler loop. It runs one tick immediately so a fresh
// deployment does not wait a full interval for its first decision cycle.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	if s.logger != nil {
		s.logger.Printf("pipeline scheduler started interval=%s", s.interval)
	}

	s.runner.RunTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Printf("pipeline scheduler stopped")
			}
			return
		case <-ticker.C:
			s.runner.RunTick(ctx)
		}
	}
}
