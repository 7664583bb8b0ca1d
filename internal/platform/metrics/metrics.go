// Package metrics defines the Prometheus collectors for the agent
// subsystem. Collectors are enqueued at package init and registered exactly
// once via MustRegister from main.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register enqueues collectors for MustRegister.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers all enqueued collectors with Prometheus exactly once.
func MustRegister() {
	once.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}

var (
	jobsClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_jobs_claimed_total",
			Help: "Jobs claimed, per worker type.",
		},
		[]string{"worker_type"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_jobs_completed_total",
			Help: "Jobs completed successfully, per worker type.",
		},
		[]string{"worker_type"},
	)

	jobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_jobs_failed_total",
			Help: "Job failures, per worker type and whether a retry was scheduled.",
		},
		[]string{"worker_type", "retryable"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_job_duration_seconds",
			Help:    "Job attempt duration distribution.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"worker_type", "success"},
	)

	classifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_classify_latency_seconds",
			Help:    "Classifier call latency distribution.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_interactions_total",
			Help: "Orchestrated turns, per resulting status.",
		},
		[]string{"status"},
	)
)

func init() {
	register(jobsClaimed, jobsCompleted, jobsFailed, jobDuration, classifyLatency, interactions)
}

// IncJobsClaimed records a successful claim.
func IncJobsClaimed(workerType string) {
	jobsClaimed.WithLabelValues(workerType).Inc()
}

// IncJobsCompleted records a completed job.
func IncJobsCompleted(workerType string) {
	jobsCompleted.WithLabelValues(workerType).Inc()
}

// IncJobsFailed records a job failure.
func IncJobsFailed(workerType string, retryable bool) {
	jobsFailed.WithLabelValues(workerType, strconv.FormatBool(retryable)).Inc()
}

// ObserveJobDuration records one attempt's duration.
func ObserveJobDuration(workerType string, d time.Duration, success bool) {
	jobDuration.WithLabelValues(workerType, strconv.FormatBool(success)).Observe(d.Seconds())
}

// ObserveClassifyLatency records one classifier call's latency.
func ObserveClassifyLatency(d time.Duration) {
	classifyLatency.Observe(d.Seconds())
}

// IncInteractions records one orchestrated turn by resulting status.
func IncInteractions(status string) {
	interactions.WithLabelValues(status).Inc()
}
