package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	submissionsTotal     *prometheus.CounterVec
	aggregationJobsTotal *prometheus.CounterVec
	aggregationDuration  *prometheus.HistogramVec
	aggregationQueue     *prometheus.GaugeVec
	statsCacheLookups    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors exposed on /metrics.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_submissions_total",
			Help: "Evaluation submissions by form type and outcome.",
		}, []string{"type", "outcome"})

		aggregationJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregation_jobs_total",
			Help: "Recompute job attempts by outcome.",
		}, []string{"outcome"})

		aggregationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregation_job_duration_seconds",
			Help:    "Duration of recompute job attempts.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"outcome"})

		aggregationQueue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggregation_queue_depth",
			Help: "Number of recompute jobs per queue state.",
		}, []string{"state"})

		statsCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stats_cache_lookups_total",
			Help: "Stats reads served from redis versus the database.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			submissionsTotal,
			aggregationJobsTotal,
			aggregationDuration,
			aggregationQueue,
			statsCacheLookups,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Submissions counts evaluation submissions by type and outcome.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// AggregationJobs counts recompute attempts by outcome (succeeded, retried, failed).
func AggregationJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return aggregationJobsTotal
}

// AggregationDuration observes recompute attempt latency.
func AggregationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return aggregationDuration
}

// AggregationQueueDepth tracks ready, delayed, processing and failed job counts.
func AggregationQueueDepth() *prometheus.GaugeVec {
	RegisterMetrics()
	return aggregationQueue
}

// StatsCacheLookups counts stats cache hits and misses.
func StatsCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statsCacheLookups
}
