package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"etfwatch/internal/alerting"
	"etfwatch/internal/calendar"
	"etfwatch/internal/config"
	"etfwatch/internal/fetcher"
	"etfwatch/internal/jobs"
	"etfwatch/internal/retry"
	"etfwatch/internal/scheduler"
	"etfwatch/internal/server"
	"etfwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	clock func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), clock: time.Now}
}

// runtime is everything a job invocation needs, opened once per process.
type runtime struct {
	flags      storage.FlagStore
	dispatcher *alerting.Dispatcher
	runner     *jobs.Runner
	calendar   *calendar.Calendar
	close      func()
}

func (a *App) newRetrier() *retry.Executor {
	return retry.New(retry.Options{
		MaxRetries: a.Config.Retry.MaxRetries,
		Delay:      a.Config.Retry.Delay(),
	}, a.Logger)
}

func (a *App) newSource() *fetcher.Tushare {
	return fetcher.NewTushare(fetcher.TushareOptions{
		BaseURL: a.Config.Sources.TushareURL,
		Token:   a.Config.RequireTushareToken,
		Timeout: a.Config.Sources.RequestTimeout,
	}, a.Logger)
}

// open prepares directories, the flag store and the job runner.
func (a *App) open(ctx context.Context) (*runtime, error) {
	if err := storage.EnsureDirectories(a.Config.Directories()); err != nil {
		return nil, err
	}

	flags, closeFlags, err := storage.OpenFlagStore(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}

	retrier := a.newRetrier()
	dispatcher := alerting.NewDispatcherFromConfig(a.Config, retrier, a.Logger)
	cal := calendar.New(a.Config.Location()).WithClock(a.clock)
	runner := jobs.NewRunner(flags, dispatcher, cal, a.Logger, jobs.Default(a.Config, a.newSource(), retrier, a.Logger)...)

	return &runtime{
		flags:      flags,
		dispatcher: dispatcher,
		runner:     runner,
		calendar:   cal,
		close:      closeFlags,
	}, nil
}

// RunJob executes one job and returns its result. A failed job returns an
// error so the process exits non-zero.
func (a *App) RunJob(ctx context.Context, name string) (jobs.Result, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return jobs.Result{Job: name}, err
	}
	defer rt.close()

	return rt.runner.Run(ctx, name)
}

// Serve runs the HTTP trigger server until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if a.Config.Server.CronSecret == "" {
		a.Logger.Warn().Msg("CRON_SECRET not configured; every trigger will be rejected")
	}

	srv := server.New(server.Options{
		Addr:          a.Config.Server.Addr,
		Secret:        a.Config.Server.CronSecret,
		Location:      rt.calendar.Location(),
		RatePerMinute: a.Config.Server.RatePerMinute,
	}, rt.runner, a.Logger)
	return srv.ListenAndServe(ctx)
}

// Run executes jobs on their configured cron schedule until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sched, err := scheduler.New(rt.calendar.Location(), scheduler.Entries(a.Config), rt.runner, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("jobs", sched.Len()).Str("timezone", a.Config.Scheduler.Timezone).Msg("starting scheduler")
	err = sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduler terminated with error")
		return err
	}
	return nil
}

// InitDirs creates the data directory layout.
func (a *App) InitDirs() ([]string, error) {
	dirs := a.Config.Directories()
	if err := storage.EnsureDirectories(dirs); err != nil {
		return nil, err
	}
	return dirs, nil
}

// TestMessage sends a fixed message through the notification path without
// touching any flag.
func (a *App) TestMessage(ctx context.Context) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	now := rt.calendar.Now().Format("2006-01-02 15:04")
	body := fmt.Sprintf("CF系统时间：%s\n【测试消息】\n这是来自鱼盆ETF系统的测试消息。", now)
	return rt.dispatcher.Notify(ctx, body)
}
