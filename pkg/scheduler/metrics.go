package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "paratune"
	promSubsystem = "scheduler"
)

var (
	schedulerLabels = []string{"scheduler"}
	jobsDispatched  = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "jobs_dispatched_total",
		Help:      "job runs handed to a worker",
	}, schedulerLabels)
	jobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "jobs_completed_total",
		Help:      "job runs finished, by outcome",
	}, []string{"scheduler", "outcome"})
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "job_duration_seconds",
		Help:      "timings of job runs",
		Buckets:   prometheus.DefBuckets,
	}, schedulerLabels)
)

func init() {
	prometheus.MustRegister(jobsDispatched, jobsCompleted, jobDuration)
}

// observeRun records the end of a run that started at start.
func observeRun(scheduler string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	jobsCompleted.WithLabelValues(scheduler, outcome).Inc()
	jobDuration.WithLabelValues(scheduler).Observe(time.Since(start).Seconds())
}
