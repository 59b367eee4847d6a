package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records gateway activity
type MetricsCollector interface {
	ConnectionOpened()
	ConnectionClosed()
	JoinCompleted(role string, success bool)
	BroadcastSent(event string, recipients int)
	SendDropped(event string)
	DrawRecorded(outcome string)
	RateLimited()
	RequestHandled(event string, success bool, duration time.Duration)
	EventPublished(event string, success bool)
}

// NoOpMetricsCollector is used when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) ConnectionOpened()                          {}
func (NoOpMetricsCollector) ConnectionClosed()                          {}
func (NoOpMetricsCollector) JoinCompleted(string, bool)                 {}
func (NoOpMetricsCollector) BroadcastSent(string, int)                  {}
func (NoOpMetricsCollector) SendDropped(string)                         {}
func (NoOpMetricsCollector) DrawRecorded(string)                        {}
func (NoOpMetricsCollector) RateLimited()                               {}
func (NoOpMetricsCollector) RequestHandled(string, bool, time.Duration) {}
func (NoOpMetricsCollector) EventPublished(string, bool)                {}

// PrometheusMetrics implements MetricsCollector on its own registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	joins           *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	recipients      *prometheus.CounterVec
	droppedSends    *prometheus.CounterVec
	draws           *prometheus.CounterVec
	rateLimited     prometheus.Counter
	requestDuration *prometheus.HistogramVec
	published       *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bingo",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "ws_joins_total",
			Help:      "Join attempts by role and status.",
		}, []string{"role", "status"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts by event type.",
		}, []string{"event"}),
		recipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "broadcast_recipients_total",
			Help:      "Frames enqueued by broadcasts.",
		}, []string{"event"}),
		droppedSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "dropped_sends_total",
			Help:      "Frames dropped because the recipient was full or closed.",
		}, []string{"event"}),
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "draws_total",
			Help:      "Draw attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "rate_limited_total",
			Help:      "Inbound requests rejected by the rate limiter.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bingo",
			Name:      "request_duration_seconds",
			Help:      "Inbound socket request handling time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event", "status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "events_published_total",
			Help:      "Events published to JetStream.",
		}, []string{"event", "status"}),
	}

	m.registry.MustRegister(
		m.connections, m.joins, m.broadcasts, m.recipients, m.droppedSends,
		m.draws, m.rateLimited, m.requestDuration, m.published,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) ConnectionOpened() { m.connections.Inc() }
func (m *PrometheusMetrics) ConnectionClosed() { m.connections.Dec() }

func (m *PrometheusMetrics) JoinCompleted(role string, success bool) {
	m.joins.WithLabelValues(role, status(success)).Inc()
}

func (m *PrometheusMetrics) BroadcastSent(event string, recipients int) {
	m.broadcasts.WithLabelValues(event).Inc()
	m.recipients.WithLabelValues(event).Add(float64(recipients))
}

func (m *PrometheusMetrics) SendDropped(event string) {
	m.droppedSends.WithLabelValues(event).Inc()
}

func (m *PrometheusMetrics) DrawRecorded(outcome string) {
	m.draws.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RateLimited() { m.rateLimited.Inc() }

func (m *PrometheusMetrics) RequestHandled(event string, success bool, duration time.Duration) {
	m.requestDuration.WithLabelValues(event, status(success)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) EventPublished(event string, success bool) {
	m.published.WithLabelValues(event, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
