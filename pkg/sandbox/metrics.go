package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandbox executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of executions that hit the wall-clock timeout",
	}, []string{"language"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Number of executions aborted by infrastructure errors",
	}, []string{"language"})

	retryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "provision_retries_total",
		Help:      "Number of sandbox provisioning retries",
	})
)
