package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"etfwatch/internal/app"
	"etfwatch/internal/config"
	"etfwatch/internal/jobs"
	"etfwatch/internal/logging"
)

// jobDetail is the EventBridge rule input, e.g. {"job": "new-stock-info"}.
type jobDetail struct {
	Job string `json:"job"`
}

// jobName prefers the job named in the event detail and falls back to
// ETFWATCH_JOB, so one function can serve one rule without custom input.
func jobName(event events.CloudWatchEvent) (string, error) {
	if len(event.Detail) > 0 {
		var d jobDetail
		if err := json.Unmarshal(event.Detail, &d); err == nil && strings.TrimSpace(d.Job) != "" {
			return strings.TrimSpace(d.Job), nil
		}
	}
	if name := strings.TrimSpace(os.Getenv("ETFWATCH_JOB")); name != "" {
		return name, nil
	}
	return "", &config.ConfigurationError{Key: "ETFWATCH_JOB", Reason: "is not set and the event names no job"}
}

// checkBackend rejects flag backends that live on the function's disk. The
// deployment package is read-only and /tmp does not outlive the execution
// environment, so a file or sqlite flag would be lost between invocations.
func checkBackend(cfg *config.Config) error {
	switch cfg.Flags.Backend {
	case config.BackendDynamoDB, config.BackendPostgres:
		return nil
	}
	return &config.ConfigurationError{
		Key:    "FLAG_BACKEND",
		Reason: fmt.Sprintf("%q cannot persist flags on Lambda; use dynamodb or postgres", cfg.Flags.Backend),
	}
}

func handler(ctx context.Context, event events.CloudWatchEvent) (jobs.Result, error) {
	name, err := jobName(event)
	if err != nil {
		return jobs.Result{}, err
	}

	cfg, err := config.Load(os.Getenv("ETFWATCH_CONFIG"))
	if err != nil {
		return jobs.Result{Job: name}, err
	}
	if err := checkBackend(cfg); err != nil {
		return jobs.Result{Job: name}, err
	}
	logger, closeLogs := logging.NewLogger(cfg.Logging)
	defer closeLogs()

	res, err := app.NewApp(cfg, logger).RunJob(ctx, name)
	if err != nil {
		return res, fmt.Errorf("job %s: %w", name, err)
	}
	return res, nil
}

func main() {
	lambda.Start(handler)
}
