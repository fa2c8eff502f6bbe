package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a curation run.
type Metrics struct {
	ObservationsRead    *prometheus.CounterVec // labels: source, metric
	ObservationsKept    *prometheus.CounterVec // labels: source, metric
	ObservationsDropped *prometheus.CounterVec // labels: source, metric, reason
	RuleHits            *prometheus.CounterVec // labels: source, rule
	CompositesBuilt     *prometheus.CounterVec // labels: source, metric, kind={placeholder,state,composite,metro}
	NegativeIncrements  *prometheus.CounterVec // labels: source, metric
	RowsPublished       *prometheus.CounterVec // labels: sink
	RegistryUnits       *prometheus.GaugeVec   // labels: kind
	StageDuration       *prometheus.HistogramVec
	PipelineRunning     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ObservationsRead,
		m.ObservationsKept,
		m.ObservationsDropped,
		m.RuleHits,
		m.CompositesBuilt,
		m.NegativeIncrements,
		m.RowsPublished,
		m.RegistryUnits,
		m.StageDuration,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_read_total",
			Help:      "Raw observations read from the source feeds.",
		}, []string{"source", "metric"}),
		ObservationsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_kept_total",
			Help:      "Observations that resolved to a registry unit.",
		}, []string{"source", "metric"}),
		ObservationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_dropped_total",
			Help:      "Observations dropped by a rule or left unresolved.",
		}, []string{"source", "metric", "reason"}),
		RuleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_hits_total",
			Help:      "Observations matched per remapping rule.",
		}, []string{"source", "rule"}),
		CompositesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_built_total",
			Help:      "Aggregate series produced by kind.",
		}, []string{"source", "metric", "kind"}),
		NegativeIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negative_increments_total",
			Help:      "Daily increments below zero, kept as reported.",
		}, []string{"source", "metric"}),
		RowsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_rows_published_total",
			Help:      "Daily rows written per sink.",
		}, []string{"sink"}),
		RegistryUnits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_units",
			Help:      "Registry units by kind.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a curation run is active, 0 otherwise.",
		}),
	}
}
