// Package scheduler triggers the daily export on a cron schedule.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/config"
)

// Job is the work executed on each tick.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a standard five-field cron expression in a fixed
// time zone. An empty expression disables it.
type Scheduler struct {
	expr     string
	loc      *time.Location
	schedule cron.Schedule
}

// New parses the schedule config.
func New(cfg config.ScheduleConfig) (*Scheduler, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: load timezone %q", cfg.Timezone)
		}
		loc = l
	}

	s := &Scheduler{expr: strings.TrimSpace(cfg.Cron), loc: loc}
	if s.expr == "" {
		return s, nil
	}

	sched, err := cron.ParseStandard(s.expr)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: parse cron %q", s.expr)
	}
	s.schedule = sched
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Scheduler) Enabled() bool {
	return s.schedule != nil
}

// Location returns the time zone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Next returns the first activation strictly after from, or the zero time
// when disabled.
func (s *Scheduler) Next(from time.Time) time.Time {
	if !s.Enabled() {
		return time.Time{}
	}
	return s.schedule.Next(from.In(s.loc))
}

// Run executes job on every activation until ctx is cancelled. It waits for
// an in-flight job before returning. A disabled scheduler just blocks.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	if !s.Enabled() {
		zap.L().Info("scheduler: disabled, no cron configured")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		log := zap.L().With(zap.String("cron", s.expr))
		log.Info("scheduler: job starting")
		if err := job(ctx); err != nil {
			log.Error("scheduler: job failed", zap.Error(err))
			return
		}
		log.Info("scheduler: job complete")
	}))

	c.Start()
	zap.L().Info("scheduler: started",
		zap.String("cron", s.expr),
		zap.String("timezone", s.loc.String()),
		zap.Time("next", s.Next(time.Now())),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	zap.L().Info("scheduler: stopped")
	return nil
}
