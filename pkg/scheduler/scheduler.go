// Package scheduler fires configured cron jobs into the bot runtime.
// Expressions are checked once per minute against the wall clock; a due
// job invokes the tick callback synchronously, so job handlers inherit
// the module loader's error isolation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/events"
	"github.com/tgdesk/tgdesk/pkg/logger"
)

// TickFunc delivers one due job to the runtime.
type TickFunc func(ctx context.Context, job string)

type Scheduler struct {
	jobs []config.JobConfig
	bus  *bus.MessageBus
	fire TickFunc

	// now is replaceable in tests.
	now      func() time.Time
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler over the configured jobs. fire is called once
// per due job per minute.
func New(jobs []config.JobConfig, mb *bus.MessageBus, fire TickFunc) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		bus:      mb,
		fire:     fire,
		now:      time.Now,
		interval: 20 * time.Second,
	}
}

// Validate checks every configured job before the loop starts, so a bad
// expression fails startup instead of being discovered at 4am.
func (s *Scheduler) Validate() error {
	gron := gronx.New()
	for i, job := range s.jobs {
		if job.Name == "" {
			return fmt.Errorf("job %d has no name", i)
		}
		if !gron.IsValid(job.Cron) {
			return fmt.Errorf("job %q has invalid cron expression %q", job.Name, job.Cron)
		}
	}
	return nil
}

// Start validates the jobs and begins the check loop. With no jobs
// configured the scheduler stays idle and Start returns nil.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(s.jobs) == 0 {
		logger.InfoC("scheduler", "No jobs configured")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)

	logger.InfoCF("scheduler", "Scheduler started", map[string]interface{}{
		"jobs": len(s.jobs),
	})
	return nil
}

// Stop halts the check loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Cron resolution is one minute; the shorter ticker interval only
	// protects against drift, so each minute is evaluated exactly once.
	var lastMinute time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			minute := s.now().Truncate(time.Minute)
			if minute.Equal(lastMinute) {
				continue
			}
			lastMinute = minute
			s.runDue(ctx, minute)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, minute time.Time) {
	gron := gronx.New()
	for _, job := range s.jobs {
		due, err := gron.IsDue(job.Cron, minute)
		if err != nil {
			logger.ErrorCF("scheduler", "Cron check failed", map[string]interface{}{
				"job":   job.Name,
				"error": err.Error(),
			})
			continue
		}
		if !due {
			continue
		}
		logger.InfoCF("scheduler", "Job due", map[string]interface{}{
			"job":  job.Name,
			"cron": job.Cron,
		})
		s.bus.PublishSystem(bus.SystemEvent{
			Type:   events.JobFired,
			Source: "scheduler",
			Data:   events.JobEventData{Job: job.Name},
		})
		s.fire(ctx, job.Name)
	}
}
