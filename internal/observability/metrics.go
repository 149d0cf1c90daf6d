package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chat server's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messages        *prometheus.CounterVec
	snapshots       prometheus.Counter
	reconnects      prometheus.Counter
	botReplies      *prometheus.CounterVec
	pushes          *prometheus.CounterVec
	openStreams     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_created_total",
			Help: "Messages created by kind and author role.",
		}, []string{"kind", "role"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_tail_snapshots_total",
			Help: "Tail window snapshots written to stream clients.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_tail_reconnects_total",
			Help: "Tail watch reconnect attempts.",
		}),
		botReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_bot_replies_total",
			Help: "Auto-responder outcomes.",
		}, []string{"outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_push_sends_total",
			Help: "Owner push notifications by outcome.",
		}, []string{"outcome"}),
		openStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_tail_streams_open",
			Help: "Open websocket tail streams.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.messages, m.snapshots,
		m.reconnects, m.botReplies, m.pushes, m.openStreams,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) MessageCreated(kind, role string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, role).Inc()
}

func (m *Metrics) SnapshotSent() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}

func (m *Metrics) TailReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) BotReply(outcome string) {
	if m == nil {
		return
	}
	m.botReplies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Push(outcome string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.openStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.openStreams.Dec()
}
