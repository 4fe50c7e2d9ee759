package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentCountsByRouteAndCode(t *testing.T) {
	m := New()
	h := m.Instrument("POST /api/messages/send", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/messages/send", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST /api/messages/send", "201")))
}

func TestCounters(t *testing.T) {
	m := New()
	m.MessageSent("direct", 1)
	m.MessageSent("broadcast", 3)
	m.ScheduledEvent("delivered", 2)
	m.ScheduledEvent("delivered", 0)
	m.SafetyAlert()
	m.TherapyReply("fallback")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("broadcast")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.scheduled.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.safetyAlerts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aiReplies.WithLabelValues("fallback")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageSent("direct", 1)
		m.ScheduledEvent("queued", 1)
		m.SafetyAlert()
		m.TherapyReply("ok")
	})

	called := false
	h := m.Instrument("GET /api/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.True(t, called)
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.MessageSent("direct", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healingspace_messages_sent_total")
}
