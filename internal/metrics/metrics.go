// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RowsRead        *prometheus.CounterVec
	RowsTransformed *prometheus.CounterVec
	RowsDropped     *prometheus.CounterVec
	RowFailures     *prometheus.CounterVec
	RowsLoaded      *prometheus.CounterVec
	PeriodsReplaced *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	LastRunSuccess  *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RowsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_rows_read_total",
			Help: "Raw rows read from source files",
		}, []string{"family"}),
		RowsTransformed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_rows_transformed_total",
			Help: "Rows that passed every transform step",
		}, []string{"family"}),
		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_rows_dropped_total",
			Help: "Rows dropped by the custom row hook",
		}, []string{"family"}),
		RowFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_row_failures_total",
			Help: "Rows excluded because a transform step failed",
		}, []string{"family", "kind"}),
		RowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_rows_loaded_total",
			Help: "Rows written to the consolidated store",
		}, []string{"family"}),
		PeriodsReplaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_periods_replaced_total",
			Help: "Periods swapped into the consolidated store",
		}, []string{"family"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "periodetl_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"family", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "periodetl_run_duration_seconds",
			Help:    "Duration of pipeline phases in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"family", "phase"}),
		LastRunSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "periodetl_last_run_success",
			Help: "1 if the last run of the family succeeded, 0 otherwise",
		}, []string{"family"}),
	}
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransform records the outcome of transforming one dataset entry.
func (m *Metrics) RecordTransform(family string, read, written, dropped int, failures map[string]int) {
	if m == nil {
		return
	}
	m.RowsRead.WithLabelValues(family).Add(float64(read))
	m.RowsTransformed.WithLabelValues(family).Add(float64(written))
	m.RowsDropped.WithLabelValues(family).Add(float64(dropped))
	for kind, n := range failures {
		m.RowFailures.WithLabelValues(family, kind).Add(float64(n))
	}
}

// RecordLoad records one load into the consolidated store.
func (m *Metrics) RecordLoad(family string, rows, periods int) {
	if m == nil {
		return
	}
	m.RowsLoaded.WithLabelValues(family).Add(float64(rows))
	m.PeriodsReplaced.WithLabelValues(family).Add(float64(periods))
}

// ObservePhase records how long a pipeline phase took.
func (m *Metrics) ObservePhase(family, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(family, phase).Observe(d.Seconds())
}

// RecordRun records the final status of a run.
func (m *Metrics) RecordRun(family, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(family, status).Inc()
	ok := 0.0
	if status == "success" {
		ok = 1
	}
	m.LastRunSuccess.WithLabelValues(family).Set(ok)
}
