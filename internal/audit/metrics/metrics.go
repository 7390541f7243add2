package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit recording and the stream sink.
type Metrics struct {
	Records           *prometheus.CounterVec
	WriteDuration     prometheus.Histogram
	StreamPublishes   *prometheus.CounterVec
	StreamBreakerOpen prometheus.Gauge
}

// New registers the audit metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medorder_audit_records_total",
			Help: "Audit record attempts by entry kind and result status",
		}, []string{"kind", "status"}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medorder_audit_write_duration_seconds",
			Help:    "Latency of durable audit writes",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		StreamPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medorder_audit_stream_publishes_total",
			Help: "Audit entries published to the event stream by result",
		}, []string{"result"}),
		StreamBreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medorder_audit_stream_breaker_open",
			Help: "1 while the stream publisher circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncRecord(kind, status string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveWrite(seconds float64) {
	if m == nil {
		return
	}
	m.WriteDuration.Observe(seconds)
}

func (m *Metrics) IncPublish(result string) {
	if m == nil {
		return
	}
	m.StreamPublishes.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.StreamBreakerOpen.Set(1)
		return
	}
	m.StreamBreakerOpen.Set(0)
}
