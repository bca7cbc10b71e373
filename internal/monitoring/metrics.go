package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "delinquency"

// Run results recorded by ObserveRun.
const (
	ResultOK          = "ok"
	ResultBusy        = "busy"
	ResultUnavailable = "unavailable"
	ResultFailed      = "failed"
)

// Metrics holds the Prometheus collectors for pipeline runs. It uses its own
// registry so tests and multiple instances do not collide.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lookupsTotal *prometheus.CounterVec
	exportedRows *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Export runs by trigger and result.",
		}, []string{"trigger", "result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of export runs that reached the pipeline.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Verification lookups by outcome.",
		}, []string{"outcome"}),
		exportedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exported_rows",
			Help:      "Rows in the most recent export, per bucket.",
		}, []string{"bucket"}),
	}
	m.registry.MustRegister(m.runsTotal, m.runDuration, m.lookupsTotal, m.exportedRows)
	return m
}

// ObserveRun records one run attempt. elapsed is ignored for busy rejections.
func (m *Metrics) ObserveRun(trigger, result string, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(trigger, result).Inc()
	if result != ResultBusy {
		m.runDuration.Observe(elapsed.Seconds())
	}
}

// ObserveLookups adds the outcome counts of one enrichment pass.
func (m *Metrics) ObserveLookups(enriched, empty, failed int) {
	m.lookupsTotal.WithLabelValues("enriched").Add(float64(enriched))
	m.lookupsTotal.WithLabelValues("empty").Add(float64(empty))
	m.lookupsTotal.WithLabelValues("failed").Add(float64(failed))
}

// SetExportedRows records the row count of the latest artifact for bucket.
func (m *Metrics) SetExportedRows(bucket string, rows int) {
	m.exportedRows.WithLabelValues(bucket).Set(float64(rows))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
