package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	variantsCreatedTotal  *prometheus.CounterVec
	submissionsSavedTotal *prometheus.CounterVec
	gradingJobsTotal      *prometheus.CounterVec
	courseErrorsTotal     *prometheus.CounterVec
	pluginCallSeconds     *prometheus.HistogramVec
	queueEnqueueFailures  *prometheus.CounterVec
	externalResultsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
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

		variantsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "variants_created_total",
			Help: "Variants inserted, labelled by question type and broken flag.",
		}, []string{"question_type", "broken"})

		submissionsSavedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_saved_total",
			Help: "Submissions inserted, labelled by question type and gradable flag.",
		}, []string{"question_type", "gradable"})

		gradingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_jobs_total",
			Help: "Grading jobs inserted, labelled by grading method and status.",
		}, []string{"grading_method", "status"})

		courseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_errors_total",
			Help: "Course errors recorded from question code.",
		}, []string{"student_message", "fatal"})

		pluginCallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "question_code_call_seconds",
			Help:    "Duration of question module calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"question_type", "phase", "result"})

		queueEnqueueFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_queue_enqueue_failures_total",
			Help: "External grading messages that could not be sent.",
		}, []string{"backend"})

		externalResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "external_grading_results_total",
			Help: "External grading results applied to jobs.",
		}, []string{"status"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			variantsCreatedTotal, submissionsSavedTotal, gradingJobsTotal, courseErrorsTotal,
			pluginCallSeconds, queueEnqueueFailures, externalResultsTotal,
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

// VariantsCreated exposes the variant creation counter.
func VariantsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return variantsCreatedTotal
}

// SubmissionsSaved exposes the submission counter.
func SubmissionsSaved() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsSavedTotal
}

// GradingJobs exposes the grading job counter.
func GradingJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingJobsTotal
}

// CourseErrors exposes the course error counter.
func CourseErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return courseErrorsTotal
}

// PluginCallDuration exposes the question module latency histogram.
func PluginCallDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return pluginCallSeconds
}

// QueueEnqueueFailures exposes the enqueue failure counter.
func QueueEnqueueFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return queueEnqueueFailures
}

// ExternalResults exposes the counter of applied external results.
func ExternalResults() *prometheus.CounterVec {
	RegisterMetrics()
	return externalResultsTotal
}
