// Package retry runs unreliable external calls with a fixed-delay policy.
//
// The delay does not grow between attempts and carries no jitter; calls it
// wraps are low-frequency scheduled requests.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// permanentError marks a failure that another attempt cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it at once, unwrapped, without retrying.
// Configuration errors are the typical case.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options tune an Executor.
type Options struct {
	// MaxRetries is the number of attempts after the first; zero means one
	// attempt in total.
	MaxRetries int
	Delay      time.Duration
	// Sleep replaces the real wait, mainly for tests.
	Sleep Sleeper
}

// Executor retries an operation up to MaxRetries additional times.
type Executor struct {
	maxRetries int
	delay      time.Duration
	sleep      Sleeper
	logger     zerolog.Logger
}

// New constructs an Executor. Negative values are clamped to zero.
func New(opts Options, logger zerolog.Logger) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Executor{
		maxRetries: opts.MaxRetries,
		delay:      opts.Delay,
		sleep:      opts.Sleep,
		logger:     logger.With().Str("component", "retry").Logger(),
	}
}

// Attempts is the total number of calls Do makes before giving up.
func (e *Executor) Attempts() int { return e.maxRetries + 1 }

// Do invokes op until it succeeds or attempts run out. Between failures it
// waits the configured delay. Errors wrapped with Permanent end the loop
// immediately. A cancelled context stops the wait and is
// reported as the final failure.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	total := e.Attempts()
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		lastErr = op(ctx)
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if lastErr == nil {
			if attempt > 1 {
				e.logger.Info().Int("attempt", attempt).Msg("call succeeded after retry")
			}
			return nil
		}
		if attempt == total {
			break
		}
		e.logger.Warn().Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", total).
			Dur("delay", e.delay).
			Msg("call failed, retrying")
		if err := e.sleep(ctx, e.delay); err != nil {
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		}
	}
	return &ExhaustedError{Attempts: total, Err: lastErr}
}

// Run is Do for operations that return a value.
func Run[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
