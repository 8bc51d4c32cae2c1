package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ReminderFired()
	m.ReminderFired()
	m.EventsImported(3)
	m.OccurrenceChanged("single", "edit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remindersFired))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importedEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.occurrenceChanges.WithLabelValues("single", "edit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.occurrenceChanges.WithLabelValues("series", "edit")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReminderFired()
		m.EventsImported(1)
		m.OccurrenceChanged("series", "delete")
		m.ObserveRequest(http.MethodGet, "/health", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/events", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/events",status="200"} 1`)
	assert.Contains(t, body, "planner_reminders_fired_total 0")
	assert.Contains(t, body, "http_request_duration_seconds_bucket")
}
