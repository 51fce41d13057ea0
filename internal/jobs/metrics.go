package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etfwatch_job_runs_total",
			Help: "Job runs by job name and outcome.",
		},
		[]string{"job", "status"},
	)
	jobRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etfwatch_job_run_duration_seconds",
			Help:    "Wall time of job runs, including retries.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"job"},
	)
)

// statusError labels runs that returned an error.
const statusError = "error"
