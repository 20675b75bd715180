// Package jobs runs periodic maintenance on top of gocron: purging expired
// idempotency records and, for the badger backend, value-log GC.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler owns a gocron scheduler and the context handed to every task.
// The context is cancelled by Shutdown so long-running tasks can stop early.
type Scheduler struct {
	s      gocron.Scheduler
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a UTC scheduler logging through l. Jobs do not run
// until Start.
func NewScheduler(l zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{l: l.With().Str("component", "scheduler").Logger()}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{s: s, log: l, ctx: ctx, cancel: cancel}, nil
}

// Cron schedules task under name using a five-field crontab expression.
// Overlapping runs of the same job are skipped.
func (s *Scheduler) Cron(name, expr string, task func(context.Context)) error {
	return s.add(name, gocron.CronJob(expr, false), task)
}

// Every schedules task under name at a fixed interval.
func (s *Scheduler) Every(name string, d time.Duration, task func(context.Context)) error {
	return s.add(name, gocron.DurationJob(d), task)
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, task func(context.Context)) error {
	_, err := s.s.NewJob(
		def,
		gocron.NewTask(func() { task(s.ctx) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.log.Info().Str("job", name).Msg("job scheduled")
	return nil
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.s.Jobs()
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name())
	}
	return out
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() { s.s.Start() }

// Shutdown cancels the task context and waits for running jobs to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// gocronLogger adapts zerolog to gocron.Logger. gocron passes key/value
// pairs after the message.
type gocronLogger struct{ l zerolog.Logger }

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debug().Fields(args).Msg(msg) }

func (g gocronLogger) Info(msg string, args ...any) { g.l.Info().Fields(args).Msg(msg) }

func (g gocronLogger) Warn(msg string, args ...any) { g.l.Warn().Fields(args).Msg(msg) }

func (g gocronLogger) Error(msg string, args ...any) { g.l.Error().Fields(args).Msg(msg) }
