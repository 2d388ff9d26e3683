package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the contact-center router.
type Metrics struct {
	ClassificationsTotal  *prometheus.CounterVec
	ClassificationMs      *prometheus.HistogramVec
	BackendAttemptsTotal  *prometheus.CounterVec
	CircuitState          *prometheus.GaugeVec
	RateLimitRejections   prometheus.Counter
	HTTPRequestsTotal     *prometheus.CounterVec
	WorkflowActionsTotal  *prometheus.CounterVec
	FeedbackRecordedTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ClassificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_center_classifications_total",
			Help: "Total classifications by category, outcome and prompt variant.",
		}, []string{"category", "outcome", "variant"}),

		ClassificationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contact_center_classification_duration_ms",
			Help:    "End-to-end classification latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"outcome"}),

		BackendAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_center_backend_attempts_total",
			Help: "Backend call attempts, including retries.",
		}, []string{"backend", "result"}),

		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "contact_center_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"breaker"}),

		RateLimitRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "contact_center_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter.",
		}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_center_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),

		WorkflowActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_center_workflow_actions_total",
			Help: "Workflow next-step actions by category.",
		}, []string{"category", "action"}),

		FeedbackRecordedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_center_feedback_total",
			Help: "Classification feedback submissions.",
		}, []string{"correct"}),
	}
}

// RecordClassification records the outcome of one classification request.
func (m *Metrics) RecordClassification(labels ClassificationLabels) {
	m.ClassificationsTotal.WithLabelValues(labels.Category, labels.Outcome, labels.Variant).Inc()
	m.ClassificationMs.WithLabelValues(labels.Outcome).Observe(labels.DurationMs)
}

// RecordBackendAttempt records one backend call attempt.
func (m *Metrics) RecordBackendAttempt(backend, result string) {
	m.BackendAttemptsTotal.WithLabelValues(backend, result).Inc()
}

// SetCircuitState publishes a breaker's state as a numeric gauge.
func (m *Metrics) SetCircuitState(breaker string, state int) {
	m.CircuitState.WithLabelValues(breaker).Set(float64(state))
}

// RecordRateLimitHit records a rejected request.
func (m *Metrics) RecordRateLimitHit() {
	m.RateLimitRejections.Inc()
}

func (m *Metrics) RecordHTTPRequest(route, status string) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

func (m *Metrics) RecordWorkflowAction(category, action string) {
	m.WorkflowActionsTotal.WithLabelValues(category, action).Inc()
}

func (m *Metrics) RecordFeedback(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	m.FeedbackRecordedTotal.WithLabelValues(label).Inc()
}

// ClassificationLabels holds the label values for recording a classification.
type ClassificationLabels struct {
	Category   string
	Outcome    string
	Variant    string
	DurationMs float64
}
