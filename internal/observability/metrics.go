package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	requestsTotal        *prometheus.CounterVec
	latencySeconds       *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	sessionsSubmitted    *prometheus.CounterVec
	gradingDecisions     *prometheus.CounterVec
	workerRunsTotal      *prometheus.CounterVec
	workerRowsTotal      *prometheus.CounterVec
	workerDurationSecond *prometheus.HistogramVec
	notificationsTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		sessionsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_sessions_submitted_total",
			Help: "Sessions closed, labelled by who triggered the submission.",
		}, []string{"trigger"})

		gradingDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_grading_decisions_total",
			Help: "Grading access decisions, labelled by outcome reason.",
		}, []string{"reason"})

		workerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_worker_runs_total",
			Help: "Scheduled worker runs, labelled by worker and result.",
		}, []string{"worker", "result"})

		workerRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_worker_rows_total",
			Help: "Rows visited by scheduled workers, labelled by outcome.",
		}, []string{"worker", "outcome"})

		workerDurationSecond = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_worker_duration_seconds",
			Help:    "Duration of scheduled worker runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_notifications_published_total",
			Help: "Notifications published, labelled by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			requestsTotal,
			latencySeconds,
			errorsTotal,
			sessionsSubmitted,
			gradingDecisions,
			workerRunsTotal,
			workerRowsTotal,
			workerDurationSecond,
			notificationsTotal,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// SessionsSubmitted counts applied submissions by trigger.
func SessionsSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionsSubmitted
}

// GradingDecisions counts grading guard outcomes.
func GradingDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingDecisions
}

// WorkerRuns counts worker runs.
func WorkerRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return workerRunsTotal
}

// WorkerRows counts rows handled by workers.
func WorkerRows() *prometheus.CounterVec {
	RegisterMetrics()
	return workerRowsTotal
}

// WorkerDuration exposes the worker run duration histogram.
func WorkerDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return workerDurationSecond
}

// NotificationsPublished counts published notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}
