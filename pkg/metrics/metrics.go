// Package metrics exposes the progress of an export run as Prometheus
// metrics. A run is a short lived batch job, so the metrics are written to a
// node_exporter textfile when the run ends instead of being scraped.
package metrics

import (
	"github.com/block/tabexport/pkg/export"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tabexport"

// Observer is an export.Observer that records Prometheus metrics.
type Observer struct {
	tablesDiscovered prometheus.Gauge
	statsUnavailable prometheus.Counter
	maxConcurrency   prometheus.Gauge
	tablesStarted    prometheus.Counter
	tableExports     *prometheus.CounterVec
	rowsExported     *prometheus.CounterVec
	exportDuration   *prometheus.HistogramVec
	runTables        *prometheus.GaugeVec
	lastRunTimestamp prometheus.Gauge
}

var _ export.Observer = (*Observer)(nil)

// NewObserver registers the collectors on reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)

	return &Observer{
		tablesDiscovered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_discovered",
			Help:      "Number of base tables found in the exported schema",
		}),
		statsUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_unavailable_total",
			Help:      "Tables whose row count or size could not be looked up",
		}),
		maxConcurrency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_concurrent_exports",
			Help:      "Maximum number of table exports in flight",
		}),
		tablesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_started_total",
			Help:      "Table exports admitted by the scheduler",
		}),
		tableExports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_exports_total",
			Help:      "Finished table exports by result and error kind",
		}, []string{"result", "kind"}),
		rowsExported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_exported_total",
			Help:      "Rows written to export files",
		}, []string{"table"}),
		exportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_export_duration_seconds",
			Help:      "Wall clock time of a table export",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"result"}),
		runTables: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_tables",
			Help:      "Tables of the last run by result",
		}, []string{"result"}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

func (o *Observer) TablesDiscovered(_ string, tables []export.TableDescriptor) {
	o.tablesDiscovered.Set(float64(len(tables)))
}

func (o *Observer) StatsUnavailable(export.TableDescriptor, error) {
	o.statsUnavailable.Inc()
}

func (o *Observer) RunStarted(_ string, _ []export.TableStats, maxConcurrency int) {
	o.maxConcurrency.Set(float64(maxConcurrency))
}

func (o *Observer) TableStarted(export.ExportTask) {
	o.tablesStarted.Inc()
}

// BatchWritten is a no-op: rows are counted once per finished table so a
// failed table does not inflate the total.
func (o *Observer) BatchWritten(export.TableDescriptor, uint64, uint64) {}

func (o *Observer) TableFinished(outcome export.ExportOutcome) {
	result, kind := "success", ""
	if !outcome.Succeeded {
		result, kind = "failure", export.KindOf(outcome.Err).String()
	}
	o.tableExports.WithLabelValues(result, kind).Inc()
	o.exportDuration.WithLabelValues(result).Observe(outcome.Duration.Seconds())
	if outcome.Succeeded {
		o.rowsExported.WithLabelValues(outcome.TableName).Add(float64(outcome.RowsWritten))
	}
}

func (o *Observer) RunFinished(report *export.ExportReport) {
	o.runTables.WithLabelValues("success").Set(float64(report.Successful))
	o.runTables.WithLabelValues("failure").Set(float64(report.Failed))
	o.lastRunTimestamp.SetToCurrentTime()
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
