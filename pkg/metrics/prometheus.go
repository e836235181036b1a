package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealflow_executions_total",
			Help: "Total number of workflow executions by terminal status",
		},
		[]string{"status"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mealflow_step_duration_seconds",
			Help:    "Step handler execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"step_type"},
	)

	DueWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealflow_due_workflows",
			Help: "Number of due workflows found in the last poll cycle",
		},
	)

	EmailsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mealflow_emails_sent_total",
			Help: "Total number of workflow emails sent",
		},
	)
)
