package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"etfwatch/internal/calendar"
	"etfwatch/internal/retry"
	"etfwatch/internal/storage"
)

// Status is the outcome of one job run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusNothing Status = "nothing"
)

// ErrUnknownJob is returned by Run for names that were never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is anything the runner can execute by name.
type Job interface {
	Name() string
}

// NotifyJob produces a message tied to a daily event. A mark made earlier on
// the same market date suppresses the job; a mark from an earlier date does
// not. An empty message means there is nothing to report today.
type NotifyJob interface {
	Job
	Event() storage.Event
	TradingDayOnly() bool
	Message(ctx context.Context, now time.Time) (string, error)
}

// TaskJob does housekeeping without notifying anyone.
type TaskJob interface {
	Job
	Execute(ctx context.Context, now time.Time) (string, error)
}

// Notifier delivers a message body. A nil return means confirmed delivery.
type Notifier interface {
	Notify(ctx context.Context, body string) error
}

// Result describes what a run did.
type Result struct {
	Job    string        `json:"job"`
	Status Status        `json:"status"`
	Event  storage.Event `json:"event,omitempty"`
	RunID  string        `json:"run_id"`
	Reason string        `json:"reason,omitempty"`
}

// Runner applies the check-flag, notify, mark sequence to registered jobs.
// Runs are serialised so the HTTP server and the scheduler never overlap
// inside one process.
type Runner struct {
	mu       sync.Mutex
	flags    storage.FlagStore
	notifier Notifier
	calendar *calendar.Calendar
	jobs     map[string]Job
	newRunID func() string
	logger   zerolog.Logger
}

// NewRunner constructs a runner with the given jobs registered.
func NewRunner(flags storage.FlagStore, notifier Notifier, cal *calendar.Calendar, logger zerolog.Logger, jobs ...Job) *Runner {
	r := &Runner{
		flags:    flags,
		notifier: notifier,
		calendar: cal,
		jobs:     make(map[string]Job, len(jobs)),
		newRunID: func() string { return uuid.NewString() },
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
	for _, j := range jobs {
		r.jobs[j.Name()] = j
	}
	return r
}

// Names lists registered job names in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the job registered under name.
func (r *Runner) Run(ctx context.Context, name string) (Result, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Result{Job: name}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.RunOnce(ctx, job)
}

// RunOnce executes job. For notify jobs the event is marked only after the
// notifier confirmed delivery, so a failed run leaves the flag untouched and
// the next run tries again.
func (r *Runner) RunOnce(ctx context.Context, job Job) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res, err := r.runLocked(ctx, job)
	status := string(res.Status)
	if err != nil {
		status = statusError
	}
	jobRunsTotal.WithLabelValues(job.Name(), status).Inc()
	jobRunDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())
	return res, err
}

func (r *Runner) runLocked(ctx context.Context, job Job) (Result, error) {
	runID := r.newRunID()
	log := r.logger.With().Str("job", job.Name()).Str("run_id", runID).Logger()
	now := r.calendar.Now()

	switch j := job.(type) {
	case NotifyJob:
		return r.runNotify(ctx, j, runID, now, log)
	case TaskJob:
		summary, err := j.Execute(ctx, now)
		if err != nil {
			log.Error().Err(err).Msg("task failed")
			return Result{Job: j.Name(), RunID: runID}, err
		}
		log.Info().Str("summary", summary).Msg("task finished")
		return Result{Job: j.Name(), Status: StatusSuccess, RunID: runID, Reason: summary}, nil
	default:
		return Result{Job: job.Name(), RunID: runID}, fmt.Errorf("job %s has no runnable form", job.Name())
	}
}

func (r *Runner) runNotify(ctx context.Context, job NotifyJob, runID string, now time.Time, log zerolog.Logger) (Result, error) {
	event := job.Event()
	result := Result{Job: job.Name(), Event: event, RunID: runID}
	log = log.With().Str("event", string(event)).Logger()

	if job.TradingDayOnly() && !r.calendar.IsTradingDay(now) {
		log.Info().Msg("今天不是交易日，跳过")
		result.Status, result.Reason = StatusSkipped, "not a trading day"
		return result, nil
	}
	if rec, ok := r.flags.Get(ctx, event); ok {
		if r.sameDay(rec.MarkedAt, now) {
			log.Info().Time("marked_at", rec.MarkedAt).Msg("already notified, skipping")
			result.Status, result.Reason = StatusSkipped, "already notified"
			return result, nil
		}
		log.Debug().Time("marked_at", rec.MarkedAt).Msg("flag is from an earlier day")
	}

	body, err := job.Message(ctx, now)
	if err != nil {
		r.logFailure(log, err, "build message failed")
		return result, fmt.Errorf("build %s message: %w", job.Name(), err)
	}
	if body == "" {
		log.Info().Msg("nothing to report")
		result.Status, result.Reason = StatusNothing, "nothing to report"
		return result, nil
	}

	if err := r.notifier.Notify(ctx, body); err != nil {
		r.logFailure(log, err, "notification failed, flag left unset")
		return result, fmt.Errorf("notify %s: %w", event, err)
	}

	info := storage.MarkInfo{
		RunID: runID,
		Note:  fmt.Sprintf("%s %s", job.Name(), now.Format("2006-01-02 15:04")),
		At:    now,
	}
	if err := r.flags.Mark(ctx, event, info); err != nil {
		log.Error().Err(err).Msg("notification delivered but flag not recorded; the next run may resend")
		return result, fmt.Errorf("mark %s: %w", event, err)
	}

	log.Info().Msg("notification delivered and flagged")
	result.Status = StatusSuccess
	return result, nil
}

// sameDay reports whether a and b fall on the same date in the market's zone.
func (r *Runner) sameDay(a, b time.Time) bool {
	loc := r.calendar.Location()
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func (r *Runner) logFailure(log zerolog.Logger, err error, msg string) {
	entry := log.Error().Err(err)
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		entry = entry.Int("attempts", exhausted.Attempts)
	}
	entry.Msg(msg)
}
