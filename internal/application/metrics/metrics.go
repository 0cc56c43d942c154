package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the application module.
type Metrics struct {
	// Applications created by country
	Created *prometheus.CounterVec

	// Intake rejections by reason (invalid_document, duplicate)
	CreateRejected *prometheus.CounterVec

	// Manual status updates by resulting status
	StatusUpdated *prometheus.CounterVec

	// Single-application lookup latency, cache included
	LookupLatency prometheus.Histogram
}

// New creates a Metrics instance with all application module metrics registered.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crediflow_applications_created_total",
			Help: "Total credit applications created by country",
		}, []string{"country"}),

		CreateRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crediflow_applications_create_rejected_total",
			Help: "Total rejected application intakes by reason",
		}, []string{"country", "reason"}),

		StatusUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crediflow_applications_status_updates_total",
			Help: "Total manual status updates by resulting status",
		}, []string{"status"}),

		LookupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crediflow_application_lookup_duration_seconds",
			Help:    "Duration of single application lookups including cache",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

// IncrementCreated records a created application.
func (m *Metrics) IncrementCreated(country string) {
	if m != nil {
		m.Created.WithLabelValues(country).Inc()
	}
}

// IncrementCreateRejected records a rejected intake.
func (m *Metrics) IncrementCreateRejected(country, reason string) {
	if m != nil {
		m.CreateRejected.WithLabelValues(country, reason).Inc()
	}
}

// IncrementStatusUpdated records a manual status update.
func (m *Metrics) IncrementStatusUpdated(status string) {
	if m != nil {
		m.StatusUpdated.WithLabelValues(status).Inc()
	}
}

// ObserveLookupLatency records a lookup duration.
func (m *Metrics) ObserveLookupLatency(d time.Duration) {
	if m != nil {
		m.LookupLatency.Observe(d.Seconds())
	}
}
