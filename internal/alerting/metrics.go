package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etfwatch_notification_send_total",
			Help: "Notification send attempts by transport and status.",
		},
		[]string{"transport", "status"},
	)
	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "etfwatch_notification_send_duration_seconds",
			Help:    "Duration of single notification HTTP requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"transport"},
	)
)
