// Package metrics holds the Prometheus collectors of the planner.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	remindersFired    prometheus.Counter
	importedEvents    prometheus.Counter
	occurrenceChanges *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remindersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_reminders_fired_total",
			Help: "Reminders marked as fired",
		}),
		importedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_import_events_total",
			Help: "Events created from calendar imports",
		}),
		occurrenceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_occurrence_changes_total",
			Help: "Edits and deletes applied to events by scope",
		}, []string{"scope", "op"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.remindersFired,
		m.importedEvents,
		m.occurrenceChanges,
		m.requestsTotal,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) ReminderFired() {
	if m == nil {
		return
	}
	m.remindersFired.Inc()
}

func (m *Metrics) EventsImported(n int) {
	if m == nil {
		return
	}
	m.importedEvents.Add(float64(n))
}

func (m *Metrics) OccurrenceChanged(scope, op string) {
	if m == nil {
		return
	}
	m.occurrenceChanges.WithLabelValues(scope, op).Inc()
}

func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
