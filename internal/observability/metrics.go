package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	lockOperationsTotal     *prometheus.CounterVec
	scoresForceFinalized    prometheus.Counter
	verificationVerdicts    *prometheus.CounterVec
	verificationReports     *prometheus.CounterVec
	verificationDuration    prometheus.Histogram
	notificationsDispatched *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the judging API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judging_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		lockOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_lock_operations_total",
			Help: "Lock and unlock commands by outcome.",
		}, []string{"operation", "outcome"})

		scoresForceFinalized = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "judging_scores_force_finalized_total",
			Help: "Scores finalized by forced-finalize locks.",
		})

		verificationVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_verification_verdicts_total",
			Help: "Per-score verification verdicts by validity.",
		}, []string{"valid"})

		verificationReports = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_verification_reports_total",
			Help: "Project verification reports by overall status.",
		}, []string{"status"})

		verificationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judging_verification_duration_seconds",
			Help:    "Time spent verifying a project's scores.",
			Buckets: prometheus.DefBuckets,
		})

		notificationsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judging_notifications_dispatched_total",
			Help: "Outbox notifications handed to sinks by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			lockOperationsTotal,
			scoresForceFinalized,
			verificationVerdicts,
			verificationReports,
			verificationDuration,
			notificationsDispatched,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// LockOperations exposes the lock/unlock outcome counter.
func LockOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return lockOperationsTotal
}

// ScoresForceFinalized exposes the forced-finalization counter.
func ScoresForceFinalized() prometheus.Counter {
	RegisterMetrics()
	return scoresForceFinalized
}

// VerificationVerdicts exposes the per-score verdict counter.
func VerificationVerdicts() *prometheus.CounterVec {
	RegisterMetrics()
	return verificationVerdicts
}

// VerificationReports exposes the per-report status counter.
func VerificationReports() *prometheus.CounterVec {
	RegisterMetrics()
	return verificationReports
}

// VerificationDuration exposes the project verification latency histogram.
func VerificationDuration() prometheus.Histogram {
	RegisterMetrics()
	return verificationDuration
}

// NotificationsDispatched exposes the outbox dispatch counter.
func NotificationsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsDispatched
}
