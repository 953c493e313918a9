package export

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/siddontang/loggers"
)

// Observer receives the lifecycle events of a run. Implementations must be
// safe for concurrent use: table events arrive from many workers at once.
type Observer interface {
	TablesDiscovered(schema string, tables []TableDescriptor)
	StatsUnavailable(table TableDescriptor, err error)
	RunStarted(runID string, stats []TableStats, maxConcurrency int)
	TableStarted(task ExportTask)
	BatchWritten(table TableDescriptor, rowsWritten, totalRows uint64)
	TableFinished(outcome ExportOutcome)
	RunFinished(report *ExportReport)
}

// NopObserver ignores every event. Embed it to implement only some events.
type NopObserver struct{}

func (NopObserver) TablesDiscovered(string, []TableDescriptor) {}
func (NopObserver) StatsUnavailable(TableDescriptor, error) {}
func (NopObserver) RunStarted(string, []TableStats, int) {}
func (NopObserver) TableStarted(ExportTask) {}
func (NopObserver) BatchWritten(TableDescriptor, uint64, uint64) {}
func (NopObserver) TableFinished(ExportOutcome) {}
func (NopObserver) RunFinished(*ExportReport) {}

// MultiObserver fans every event out to all observers in order.
type MultiObserver []Observer

func (m MultiObserver) TablesDiscovered(schema string, tables []TableDescriptor) {
	for _, o := range m {
		o.TablesDiscovered(schema, tables)
	}
}

func (m MultiObserver) StatsUnavailable(table TableDescriptor, err error) {
	for _, o := range m {
		o.StatsUnavailable(table, err)
	}
}

func (m MultiObserver) RunStarted(runID string, stats []TableStats, maxConcurrency int) {
	for _, o := range m {
		o.RunStarted(runID, stats, maxConcurrency)
	}
}

func (m MultiObserver) TableStarted(task ExportTask) {
	for _, o := range m {
		o.TableStarted(task)
	}
}

func (m MultiObserver) BatchWritten(table TableDescriptor, rowsWritten, totalRows uint64) {
	for _, o := range m {
		o.BatchWritten(table, rowsWritten, totalRows)
	}
}

func (m MultiObserver) TableFinished(outcome ExportOutcome) {
	for _, o := range m {
		o.TableFinished(outcome)
	}
}

func (m MultiObserver) RunFinished(report *ExportReport) {
	for _, o := range m {
		o.RunFinished(report)
	}
}

// LogObserver writes the events to a logger.
type LogObserver struct {
	logger loggers.Advanced
}

func NewLogObserver(logger loggers.Advanced) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) TablesDiscovered(schema string, tables []TableDescriptor) {
	if len(tables) == 0 {
		l.logger.Warnf("No tables found to export in schema '%s'", schema)

		return
	}
	l.logger.Infof("Found %d tables in schema '%s'", len(tables), schema)
}

func (l *LogObserver) StatsUnavailable(table TableDescriptor, err error) {
	l.logger.Errorf("Error getting info for table '%s': %v", table.Name, err)
}

func (l *LogObserver) RunStarted(runID string, stats []TableStats, maxConcurrency int) {
	var rows, size uint64
	for _, s := range stats {
		rows += s.RowCount
		size += s.SizeBytes
	}
	l.logger.Infof("Total: %d tables, %s rows, %s", len(stats), humanize.Comma(int64(rows)), humanize.IBytes(size))
	l.logger.Infof("Starting export run-id=%s of %d tables (max %d concurrent)", runID, len(stats), maxConcurrency)
}

func (l *LogObserver) TableStarted(task ExportTask) {
	l.logger.Debugf("Exporting table '%s' to %s", task.Stats.Descriptor.Name, task.OutputPath)
}

func (l *LogObserver) BatchWritten(table TableDescriptor, rowsWritten, totalRows uint64) {
	if totalRows == 0 {
		return
	}
	pct := float64(rowsWritten) / float64(totalRows) * 100
	l.logger.Infof("Progress for '%s': %d/%d rows (%.1f%%)", table.Name, rowsWritten, totalRows, pct)
}

func (l *LogObserver) TableFinished(outcome ExportOutcome) {
	if outcome.Succeeded {
		l.logger.Infof("Exported table '%s' to %s (%d rows) in %s",
			outcome.TableName, outcome.OutputPath, outcome.RowsWritten, outcome.Duration.Round(time.Millisecond))

		return
	}
	l.logger.Errorf("Error exporting table '%s': %v", outcome.TableName, outcome.Err)
}

func (l *LogObserver) RunFinished(report *ExportReport) {
	l.logger.Infof("Export complete: %d/%d tables exported successfully", report.Successful, report.TotalTables)
	if report.Failed > 0 {
		l.logger.Warnf("Failed to export: %v", report.Record().FailedTables)
	}
}
