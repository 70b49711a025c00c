// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors so tests can register them on their own registry.
type Metrics struct {
	EventsPublished      *prometheus.CounterVec
	EventPublishFailures *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	DeliveryInFlight     prometheus.Gauge
	DeliveryWaiting      prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	JobRuns              *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_events_published_total",
				Help: "Total number of domain events published",
			},
			[]string{"source", "type"},
		),
		EventPublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_event_publish_failures_total",
				Help: "Total number of domain events that could not be published",
			},
			[]string{"type"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_stage_duration_seconds",
				Help:    "Duration of completed stages",
				Buckets: []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
			},
			[]string{"stage"},
		),
		DeliveryInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fulfillment_delivery_in_flight",
				Help: "Number of orders holding a delivery slot",
			},
		),
		DeliveryWaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fulfillment_delivery_waiting",
				Help: "Number of orders waiting for a delivery slot",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "result"},
		),
	}
}

// Register registers all collectors on r.
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.EventsPublished,
		m.EventPublishFailures,
		m.StageDuration,
		m.DeliveryInFlight,
		m.DeliveryWaiting,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobRuns,
	)
}
