package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"brickwatch/internal/observability/slo"
	"brickwatch/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker process.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// pool-specific metrics for job consumption and the scheduled sweeps.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Pool metrics:
//   - worker_jobs_processed_total: Jobs consumed, by job name and outcome
//   - worker_job_duration_seconds: Duration histogram of job execution
//   - worker_sweep_runs_total: Scheduled sweep runs by status
//   - worker_sweep_jobs_enqueued_total: Jobs enqueued by sweeps
//   - worker_last_success_timestamp: Unix timestamp of the last completed job
type WorkerMetrics struct {
	*config.ConfigMetrics

	// JobsProcessedTotal counts consumed jobs.
	// Labels: name (job name), outcome (completed, failed, retried, panic)
	JobsProcessedTotal *prometheus.CounterVec

	// JobDurationSeconds measures job execution from claim to ack/fail.
	// Buckets cover a fast simple fetch up to a slow browser scrape.
	JobDurationSeconds prometheus.Histogram

	// SweepRunsTotal counts scheduled sweep runs.
	// Labels: status (success, failure)
	SweepRunsTotal *prometheus.CounterVec

	// SweepJobsEnqueuedTotal counts the jobs the sweeps put on the queue.
	SweepJobsEnqueuedTotal prometheus.Counter

	// LastSuccessTimestamp records the Unix timestamp of the last job that
	// completed successfully. A stale value means the pool is stuck.
	LastSuccessTimestamp prometheus.Gauge

	// SLO feeds the rolling success-ratio and latency windows. Only
	// terminal outcomes are recorded; a retried attempt is not final.
	SLO *slo.Tracker
}

// NewWorkerMetrics creates a WorkerMetrics instance. Metrics register with
// the default registry via promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		JobsProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Total jobs consumed by the pool, by job name and outcome",
		}, []string{"name", "outcome"}),

		JobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job execution from claim to ack or fail",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_runs_total",
			Help: "Total scheduled sweep runs by status (success/failure)",
		}, []string{"status"}),

		SweepJobsEnqueuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_sweep_jobs_enqueued_total",
			Help: "Total jobs enqueued by scheduled sweeps",
		}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last successfully completed job",
		}),

		SLO: slo.NewTracker(slo.DefaultWindowSize),
	}
}

// MustRegister is a no-op kept for API symmetry; promauto already registered
// everything in NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {}

// RecordJob counts one consumed job with its outcome and duration.
func (m *WorkerMetrics) RecordJob(name, outcome string, seconds float64) {
	m.JobsProcessedTotal.WithLabelValues(name, outcome).Inc()
	m.JobDurationSeconds.Observe(seconds)
	if outcome == "completed" {
		m.LastSuccessTimestamp.SetToCurrentTime()
	}
	if m.SLO != nil {
		switch outcome {
		case "completed":
			m.SLO.Record(true, seconds)
		case "failed", "panic":
			m.SLO.Record(false, seconds)
		}
	}
}

// RecordSweep counts one scheduled sweep run.
func (m *WorkerMetrics) RecordSweep(status string, jobsEnqueued int) {
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	if jobsEnqueued > 0 {
		m.SweepJobsEnqueuedTotal.Add(float64(jobsEnqueued))
	}
}
