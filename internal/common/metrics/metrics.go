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

	LookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_requests_total",
			Help: "Total number of applicant lookups by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookup_duration_seconds",
			Help:    "Duration of applicant lookups in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	LookupTierCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookup_tier_candidates",
			Help:    "Number of candidates returned per lookup tier",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind", "tier"},
	)

	LookupCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_cache_events_total",
			Help: "Lookup response cache hits, misses and errors",
		},
		[]string{"event"},
	)
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)
