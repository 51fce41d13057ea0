package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"etfwatch/internal/config"
	"etfwatch/internal/jobs"
)

// JobRunner executes a job by name.
type JobRunner interface {
	Run(ctx context.Context, name string) (jobs.Result, error)
}

// Entry binds a job to a five-field cron expression. An empty Spec disables
// the job.
type Entry struct {
	Job  string
	Spec string
}

// Entries reads the schedule from configuration.
func Entries(cfg *config.Config) []Entry {
	return []Entry{
		{Job: jobs.NameNewStockInfo, Spec: cfg.Scheduler.NewStock},
		{Job: jobs.NameNewListings, Spec: cfg.Scheduler.Listings},
		{Job: jobs.NameArbitrageScan, Spec: cfg.Scheduler.Arbitrage},
		{Job: jobs.NameCleanup, Spec: cfg.Scheduler.Cleanup},
	}
}

// Scheduler fires jobs on their cron schedule in a fixed timezone.
type Scheduler struct {
	cron   *gocron.Scheduler
	runner JobRunner
	ctx    context.Context
	logger zerolog.Logger
}

// New registers every enabled entry. Invalid expressions are reported here
// rather than at the first tick.
func New(loc *time.Location, entries []Entry, runner JobRunner, logger zerolog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:   gocron.NewScheduler(loc),
		runner: runner,
		ctx:    context.Background(),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	s.cron.SingletonModeAll()

	for _, e := range entries {
		if e.Spec == "" {
			s.logger.Info().Str("job", e.Job).Msg("no schedule configured, job disabled")
			continue
		}
		name := e.Job
		if _, err := s.cron.Cron(e.Spec).Tag(name).Do(func() { s.fire(name) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, e.Spec, err)
		}
	}
	return s, nil
}

// Len reports how many jobs are scheduled.
func (s *Scheduler) Len() int { return len(s.cron.Jobs()) }

// Run blocks until ctx is cancelled, firing jobs as they come due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.StartAsync()
	for _, j := range s.cron.Jobs() {
		s.logger.Info().Strs("job", j.Tags()).Time("next_run", j.NextRun()).Msg("job scheduled")
	}

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) fire(name string) {
	s.logger.Info().Str("job", name).Msg("executing scheduled job")
	res, err := s.runner.Run(s.ctx, name)
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Str("run_id", res.RunID).Msg("scheduled job failed")
		return
	}
	s.logger.Info().Str("job", name).Str("status", string(res.Status)).Str("reason", res.Reason).Msg("scheduled job finished")
}
