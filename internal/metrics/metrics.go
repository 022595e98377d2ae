// Package metrics exposes Prometheus instruments for the production
// lifecycle: transition counts, failures by error kind, phase durations and
// reactor occupancy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zulandar/reactoryard/internal/models"
)

const namespace = "pkt"

// Metrics holds the lifecycle instruments registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	TransitionsTotal   *prometheus.CounterVec
	FailuresTotal      *prometheus.CounterVec
	ProductionDuration *prometheus.HistogramVec
	WashingDuration    *prometheus.HistogramVec
	ActiveReactors     prometheus.Gauge
	OverrunBatches     prometheus.Gauge
	ImportRowsTotal    *prometheus.CounterVec
}

// phaseBuckets span 15 minutes to two days, in seconds.
var phaseBuckets = prometheus.ExponentialBuckets(900, 2, 8)

// New registers a fresh set of instruments on a private registry. Go and
// process collectors are included so /metrics serves them too.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Applied status transitions.",
			},
			[]string{"from", "to"},
		),
		FailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_failures_total",
				Help:      "Failed lifecycle operations by operation and error kind.",
			},
			[]string{"operation", "kind"},
		),
		ProductionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "production_duration_seconds",
				Help:      "Actual production duration of batches, recorded at production completion.",
				Buckets:   phaseBuckets,
			},
			[]string{"reactor_id"},
		),
		WashingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "washing_duration_seconds",
				Help:      "Washing duration of batches, recorded at washing completion.",
				Buckets:   phaseBuckets,
			},
			[]string{"reactor_id"},
		),
		ActiveReactors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_reactors",
			Help:      "Reactors currently holding a non-terminal batch.",
		}),
		OverrunBatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overrun_batches",
			Help:      "In-progress batches exceeding their product's standard duration, as of the last scan.",
		}),
		ImportRowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Imported rows by result.",
			},
			[]string{"result"},
		),
	}
}

// ObserveTransition records an applied transition. A nil receiver is a
// no-op so callers need not check whether metrics are enabled.
func (m *Metrics) ObserveTransition(from, to models.Status) {
	if m == nil {
		return
	}
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "none"
	}
	m.TransitionsTotal.WithLabelValues(fromLabel, string(to)).Inc()
	switch {
	case from == "" && to == models.StatusPlanned:
		m.ActiveReactors.Inc()
	case to.IsTerminal():
		m.ActiveReactors.Dec()
	}
}

// ObserveFailure counts a failed operation. Empty kinds are ignored.
func (m *Metrics) ObserveFailure(operation, kind string) {
	if m == nil || kind == "" {
		return
	}
	m.FailuresTotal.WithLabelValues(operation, kind).Inc()
}

// ObserveProduction records a batch's actual production duration.
func (m *Metrics) ObserveProduction(reactorID string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProductionDuration.WithLabelValues(reactorID).Observe(d.Seconds())
}

// ObserveWashing records a batch's washing duration.
func (m *Metrics) ObserveWashing(reactorID string, d time.Duration) {
	if m == nil {
		return
	}
	m.WashingDuration.WithLabelValues(reactorID).Observe(d.Seconds())
}

// SetActiveReactors overwrites the occupancy gauge, used after startup and
// by the monitor to correct drift.
func (m *Metrics) SetActiveReactors(n int) {
	if m == nil {
		return
	}
	m.ActiveReactors.Set(float64(n))
}

// SetOverrun overwrites the overrun gauge.
func (m *Metrics) SetOverrun(n int) {
	if m == nil {
		return
	}
	m.OverrunBatches.Set(float64(n))
}

// ObserveImportRow counts one imported row as "success" or "failure".
func (m *Metrics) ObserveImportRow(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.ImportRowsTotal.WithLabelValues(result).Inc()
}
