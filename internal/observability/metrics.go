package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "argo_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a conversion run.
type Metrics struct {
	FilesProcessed     *prometheus.CounterVec // labels: outcome={success,warning,failure,skipped}
	RowsWritten        prometheus.Counter
	MissingVariables   *prometheus.CounterVec // labels: variable
	ConversionDuration prometheus.Histogram
	WorkersBusy        prometheus.Gauge
	RunInProgress      prometheus.Gauge

	// Outcome publishing.
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Source files handled, by outcome.",
		}, []string{"outcome"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Flattened rows written to output tables.",
		}),
		MissingVariables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_variables_total",
			Help:      "Requested variables absent or unreadable in a source file.",
		}, []string{"variable"}),
		ConversionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time to read, flatten, and write one source file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Conversion workers currently handling a file.",
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a conversion run is active, 0 otherwise.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_events_published_total",
			Help:      "Outcome events written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_publish_errors_total",
			Help:      "Failed attempts to write an outcome batch to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesProcessed,
		m.RowsWritten,
		m.MissingVariables,
		m.ConversionDuration,
		m.WorkersBusy,
		m.RunInProgress,
		m.EventsPublished,
		m.PublishErrors,
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
