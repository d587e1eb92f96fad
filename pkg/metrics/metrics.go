package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paybot"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	paymentsCreated *prometheus.CounterVec
	statusChecks    *prometheus.CounterVec
	receipts        *prometheus.CounterVec
	outboxEvents    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Chat events handled, by type and outcome.",
		}, []string{"type", "result"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one chat event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_created_total",
			Help:      "Payment creation attempts, by provider and outcome.",
		}, []string{"provider", "result"}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_checks_total",
			Help:      "Reconciled payment statuses.",
		}, []string{"status"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Receipt deliveries, by outcome.",
		}, []string{"result"}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events relayed to Kafka, by outcome.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.eventDuration,
		m.paymentsCreated,
		m.statusChecks,
		m.receipts,
		m.outboxEvents,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveEvent(eventType string, took time.Duration, err error) {
	m.events.WithLabelValues(eventType, result(err)).Inc()
	m.eventDuration.WithLabelValues(eventType).Observe(took.Seconds())
}

func (m *Metrics) PaymentCreated(provider, outcome string) {
	m.paymentsCreated.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) StatusChecked(status string) {
	m.statusChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) ReceiptDelivered(outcome string) {
	m.receipts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OutboxRelayed(published, failed int) {
	m.outboxEvents.WithLabelValues("published").Add(float64(published))
	m.outboxEvents.WithLabelValues("failed").Add(float64(failed))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
