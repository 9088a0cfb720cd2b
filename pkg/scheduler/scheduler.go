package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a named job on a fixed interval until the context is
// cancelled. Job errors are reported and the schedule keeps going.
type Scheduler struct {
	name     string
	job      Job
	interval time.Duration
}

func NewScheduler(name string, job Job, interval time.Duration) *Scheduler {
	return &Scheduler{
		name:     name,
		job:      job,
		interval: interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.job(ctx); err != nil {
				fmt.Printf("Scheduler %s: job failed: %v\n", s.name, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
