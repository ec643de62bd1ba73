package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// Scheduler repeats a sweep on a cron schedule. With an empty schedule the
// sweep runs exactly once.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
}

// NewScheduler parses a standard five-field cron expression.
func NewScheduler(spec string) (*Scheduler, error) {
	s := &Scheduler{spec: spec}
	if spec == "" {
		return s, nil
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.schedule = schedule
	return s, nil
}

// Run invokes f once, or repeatedly per the schedule until the context is
// cancelled. A failed scheduled run is logged and does not stop the
// schedule; every run is independent.
func (s *Scheduler) Run(ctx context.Context, log logr.Logger, f func(context.Context) error) error {
	if s.schedule == nil {
		return f(ctx)
	}

	next := s.schedule.Next(time.Now())
	log.Info("running on schedule", "schedule", s.spec, "first", next)

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		if err := f(ctx); err != nil {
			log.Error(err, "scheduled sweep failed")
		}

		next = s.schedule.Next(time.Now())
		log.Info("scheduled sweep finished", "took", time.Since(started).Round(time.Second), "next", next)
	}
}
