// Package metrics exposes Prometheus instrumentation for the HTTP surface and
// the messaging pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create independent instances.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messagesSent    *prometheus.CounterVec
	scheduled       *prometheus.CounterVec
	safetyAlerts    prometheus.Counter
	aiReplies       *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healingspace",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healingspace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healingspace",
			Name:      "messages_sent_total",
			Help:      "Messages delivered by message type.",
		}, []string{"type"}),
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healingspace",
			Name:      "scheduled_messages_total",
			Help:      "Scheduled message lifecycle events.",
		}, []string{"event"}),
		safetyAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healingspace",
			Name:      "safety_alerts_total",
			Help:      "High-risk messages detected by the safety monitor.",
		}),
		aiReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healingspace",
			Name:      "therapy_replies_total",
			Help:      "Therapy assistant replies by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.messagesSent,
		m.scheduled,
		m.safetyAlerts,
		m.aiReplies,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records count and latency of requests to route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// MessageSent counts n delivered messages of the given type.
func (m *Metrics) MessageSent(messageType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesSent.WithLabelValues(messageType).Add(float64(n))
}

// ScheduledEvent counts scheduled-message events such as "queued" or "delivered".
func (m *Metrics) ScheduledEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.scheduled.WithLabelValues(event).Add(float64(n))
}

// SafetyAlert counts one high-risk detection.
func (m *Metrics) SafetyAlert() {
	if m == nil {
		return
	}
	m.safetyAlerts.Inc()
}

// TherapyReply counts one assistant reply by outcome: "ok", "fallback" or "disabled".
func (m *Metrics) TherapyReply(outcome string) {
	if m == nil {
		return
	}
	m.aiReplies.WithLabelValues(outcome).Inc()
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (r *codeRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
