// Package scheduler runs recurring jobs on one shared gocron scheduler.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"oilfox_bridge/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler is the shared background executor of the process.
type Scheduler struct {
	s   gocron.Scheduler
	log *logger.Logger
}

// New creates a scheduler and starts it.
func New(log *logger.Logger) (*Scheduler, error) {
	log = logger.OrNop(log).Named("scheduler")
	s, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{log}))
	if err != nil {
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}
	s.Start()
	return &Scheduler{s: s, log: log}, nil
}

// Schedule runs task now and then every interval. A fire that comes while
// the previous run is still going is skipped. The returned cancel func
// removes the job; it does not interrupt a run in progress and may be
// called more than once.
func (sc *Scheduler) Schedule(name string, every time.Duration, task func()) (func() error, error) {
	if every <= 0 {
		return nil, fmt.Errorf("invalid interval %s for job %q", every, name)
	}
	job, err := sc.s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating job %q: %w", name, err)
	}
	id := job.ID()
	sc.log.Infow("job_scheduled", "job", name, "id", id.String(), "every", every.String())

	return func() error {
		err := sc.s.RemoveJob(id)
		if errors.Is(err, gocron.ErrJobNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error removing job %q: %w", name, err)
		}
		sc.log.Infow("job_cancelled", "job", name, "id", id.String())
		return nil
	}, nil
}

// Jobs returns the names of the scheduled jobs.
func (sc *Scheduler) Jobs() []string {
	jobs := sc.s.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Shutdown stops the scheduler and waits for running jobs.
func (sc *Scheduler) Shutdown() error {
	if err := sc.s.Shutdown(); err != nil {
		return fmt.Errorf("error shutting down: %w", err)
	}
	return nil
}

// gocronLogger adapts the zap logger to gocron.Logger.
type gocronLogger struct{ l *logger.Logger }

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Debugw(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
