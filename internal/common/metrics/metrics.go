// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Admission pipeline
var (
	SectionsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_sections_written_total",
			Help: "Section writes accepted, by section",
		},
		[]string{"section"},
	)

	PaymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_payment_attempts_total",
			Help: "Payment attempts recorded, by status",
		},
		[]string{"status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	AdmissionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_finalized_total",
			Help: "Finalize calls that returned an admission record",
		},
		[]string{"path"},
	)

	DraftsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_drafts_reaped_total",
			Help: "Drafts deleted by the retention reaper",
		},
	)

	IntegrityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_integrity_violations_total",
			Help: "Applications observed with both a draft and an admission record",
		},
		[]string{"source"},
	)
)
