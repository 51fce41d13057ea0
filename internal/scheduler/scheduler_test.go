package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etfwatch/internal/config"
	"etfwatch/internal/jobs"
)

type recordingRunner struct {
	names chan string
}

func (r *recordingRunner) Run(_ context.Context, name string) (jobs.Result, error) {
	r.names <- name
	return jobs.Result{Job: name, Status: jobs.StatusSuccess}, nil
}

func TestNewRegistersEnabledEntries(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		NewStock:  "*/30 9-11 * * 1-5",
		Listings:  "5,35 9-11 * * 1-5",
		Arbitrage: "",
		Cleanup:   "0 1 * * 0",
	}}

	s, err := New(time.UTC, Entries(cfg), &recordingRunner{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New(time.UTC, []Entry{{Job: jobs.NameCleanup, Spec: "every tuesday"}}, &recordingRunner{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobs.NameCleanup)
}

func TestRunFiresJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the next minute boundary")
	}
	runner := &recordingRunner{names: make(chan string, 4)}
	s, err := New(time.UTC, []Entry{{Job: jobs.NameCleanup, Spec: "* * * * *"}}, runner, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case name := <-runner.names:
		assert.Equal(t, jobs.NameCleanup, name)
	case <-time.After(65 * time.Second):
		t.Fatal("job never fired")
	}

	cancel()
	require.NoError(t, <-done)
}
