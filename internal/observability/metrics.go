package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "case_service"

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	HTTP   HTTPMetrics
	SLA    SLAMetrics
	Outbox OutboxMetrics
}

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
}

type SLAMetrics struct {
	SweepsTotal   *prometheus.CounterVec
	AlertsTotal   *prometheus.CounterVec
	SweepDuration prometheus.Histogram
}

type OutboxMetrics struct {
	EnqueuedTotal    *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	ExhaustedTotal   *prometheus.CounterVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTP: HTTPMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status.",
			}, []string{"route", "method", "status"}),
			RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Error responses by route and error code.",
			}, []string{"route", "method", "code"}),
		},
		SLA: SLAMetrics{
			SweepsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "sweeps_total",
				Help:      "SLA sweeps by result.",
			}, []string{"result"}), // ok|error
			AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "alerts_total",
				Help:      "SLA alert decisions by kind and outcome.",
			}, []string{"kind", "outcome"}), // alerted|skipped|failed
			SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of one SLA sweep pass.",
				Buckets:   prometheus.DefBuckets,
			}),
		},
		Outbox: OutboxMetrics{
			EnqueuedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "enqueued_total",
				Help:      "Outbox entries written by channel.",
			}, []string{"channel"}),
			DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "deliveries_total",
				Help:      "Delivery attempts by channel and result.",
			}, []string{"channel", "result"}), // completed|failed|exhausted
			DeliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "delivery_duration_seconds",
				Help:      "Latency of a single delivery attempt.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"channel"}),
			ExhaustedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "exhausted_total",
				Help:      "Entries that used up their retries.",
			}, []string{"channel", "event_type"}),
		},
	}
}

// RecordRequest observes one HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTP.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTP.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.HTTP.ErrorsTotal.WithLabelValues(route, method, code).Inc()
}

// RecordSweep observes one sweep pass.
func (m *Metrics) RecordSweep(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SLA.SweepsTotal.WithLabelValues(result).Inc()
	m.SLA.SweepDuration.Observe(duration.Seconds())
}

// RecordSLAAlert counts an alert decision for one case.
func (m *Metrics) RecordSLAAlert(kind, outcome string) {
	if m == nil {
		return
	}
	m.SLA.AlertsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordEnqueue counts an outbox write.
func (m *Metrics) RecordEnqueue(channel string) {
	if m == nil {
		return
	}
	m.Outbox.EnqueuedTotal.WithLabelValues(channel).Inc()
}

// RecordDelivery observes one delivery attempt.
func (m *Metrics) RecordDelivery(channel, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Outbox.DeliveriesTotal.WithLabelValues(channel, result).Inc()
	m.Outbox.DeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordExhausted counts an entry that will not be retried again.
func (m *Metrics) RecordExhausted(channel, eventType string) {
	if m == nil {
		return
	}
	m.Outbox.ExhaustedTotal.WithLabelValues(channel, eventType).Inc()
}
