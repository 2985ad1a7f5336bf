package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	clicks           *prometheus.CounterVec
	messages         *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		clicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drp_clicks_total",
			Help: "Tracked clicks by filter result",
		}, []string{"result"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drp_inbound_messages_total",
			Help: "Inbound messages by conversation outcome",
		}, []string{"outcome"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drp_deliveries_total",
			Help: "Fan-out dispatches by sink and result",
		}, []string{"sink", "result"}),
		deliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drp_delivery_duration_seconds",
			Help:    "Time spent in one fan-out dispatch",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
	}
}

func (m *Metrics) Click(result string) {
	if m == nil {
		return
	}
	m.clicks.WithLabelValues(result).Inc()
}

func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivery(sink, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
	if took > 0 {
		m.deliveryDuration.WithLabelValues(sink).Observe(took.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
