// Package metrics exposes Prometheus counters for scanning and reconciliation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	Scans          *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	StaleCounts    prometheus.Counter
	Reconciles     *prometheus.CounterVec
	DriftedDays    prometheus.Counter
	OpenedSessions prometheus.Counter
}

// New registers the collectors, plus Go and process collectors, on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messhall",
			Name:      "scans_total",
			Help:      "Scan attempts by outcome and meal.",
		}, []string{"outcome", "meal"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "messhall",
			Name:      "scan_duration_seconds",
			Help:      "Time to validate and record one scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		StaleCounts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "messhall",
			Name:      "headcount_stale_total",
			Help:      "Recorded scans whose head count update failed.",
		}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messhall",
			Name:      "reconciles_total",
			Help:      "Head count reconciliations by result.",
		}, []string{"result"}),
		DriftedDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "messhall",
			Name:      "headcount_drifted_days_total",
			Help:      "Days whose stored head count differed from the scans.",
		}),
		OpenedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "messhall",
			Name:      "scan_sessions_opened_total",
			Help:      "Scanning sessions started.",
		}),
	}
	reg.MustRegister(
		m.Scans, m.ScanDuration, m.StaleCounts, m.Reconciles, m.DriftedDays, m.OpenedSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScan counts one scan attempt.
func (m *Metrics) ObserveScan(outcome, meal string, seconds float64) {
	m.Scans.WithLabelValues(outcome, meal).Inc()
	m.ScanDuration.Observe(seconds)
}

// ObserveReconcile counts one reconcile pass.
func (m *Metrics) ObserveReconcile(drifted int, err error) {
	if err != nil {
		m.Reconciles.WithLabelValues("error").Inc()
		return
	}
	m.Reconciles.WithLabelValues("ok").Inc()
	m.DriftedDays.Add(float64(drifted))
}
