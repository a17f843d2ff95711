// Package metrics exposes linkwatch's Prometheus collectors.
//
// All recording methods are safe on a nil *Metrics so components can be
// built without a registry in tests.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkwatch"

type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	fetchFailures   *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	sends           *prometheus.CounterVec
	reports         *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	tracked         prometheus.Gauge
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_cycles_total",
			Help: "Poll cycles by outcome (ok, skipped).",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_cycle_duration_seconds",
			Help:    "Wall time of completed poll cycles.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_failures_total",
			Help: "Source fetches that failed after all retries.",
		}, []string{"source"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Outage alerts dispatched by kind.",
		}, []string{"kind"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recoveries_total",
			Help: "Recovery notices dispatched by kind.",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_total",
			Help: "Per-target sends by category and result.",
		}, []string{"category", "result"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reports_total",
			Help: "Scheduled and on-demand reports by result.",
		}, []string{"result"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_failures_total",
			Help: "Durable record writes that exhausted their retries.",
		}, []string{"record"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tracked_outages",
			Help: "Outages currently in the notified state.",
		}),
	}

	collectors := []prometheus.Collector{
		m.cycles, m.cycleDuration, m.fetchFailures, m.alerts, m.recoveries,
		m.sends, m.reports, m.persistFailures, m.tracked,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleDone(d time.Duration, tracked int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("ok").Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.tracked.Set(float64(tracked))
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("skipped").Inc()
}

func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

func (m *Metrics) Recovery(kind string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(kind).Inc()
}

func (m *Metrics) Send(category string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(category, result).Inc()
}

func (m *Metrics) Report(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reports.WithLabelValues(result).Inc()
}

func (m *Metrics) PersistFailed(record string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(record).Inc()
}
