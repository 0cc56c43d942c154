package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the evaluation module.
type Metrics struct {
	// Completed evaluations by country and resulting status
	Evaluations *prometheus.CounterVec

	// Bureau fetch latency by provider
	ProviderLatency *prometheus.HistogramVec

	// Status writes skipped because the application had already reached a
	// terminal state or another writer won the race
	SkippedTransitions *prometheus.CounterVec

	// Webhook deliveries discarded by the idempotency guard
	WebhooksDiscarded prometheus.Counter
}

// New creates a Metrics instance with all evaluation module metrics registered.
func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crediflow_evaluations_total",
			Help: "Total completed risk evaluations by country and resulting status",
		}, []string{"country", "status"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crediflow_evaluation_provider_duration_seconds",
			Help:    "Duration of bureau data fetches by provider",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 10},
		}, []string{"provider"}),

		SkippedTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crediflow_evaluation_skipped_transitions_total",
			Help: "Total status writes skipped during evaluation by reason",
		}, []string{"reason"}), // reason: "terminal", "conflict"

		WebhooksDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crediflow_evaluation_webhooks_discarded_total",
			Help: "Total webhook deliveries discarded as duplicates",
		}),
	}
}

// IncrementEvaluation records a completed evaluation.
func (m *Metrics) IncrementEvaluation(country, status string) {
	if m != nil {
		m.Evaluations.WithLabelValues(country, status).Inc()
	}
}

// ObserveProviderLatency records a bureau fetch duration.
func (m *Metrics) ObserveProviderLatency(provider string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// IncrementSkippedTransition records a skipped status write.
func (m *Metrics) IncrementSkippedTransition(reason string) {
	if m != nil {
		m.SkippedTransitions.WithLabelValues(reason).Inc()
	}
}

// IncrementWebhookDiscarded records a duplicate webhook delivery.
func (m *Metrics) IncrementWebhookDiscarded() {
	if m != nil {
		m.WebhooksDiscarded.Inc()
	}
}
