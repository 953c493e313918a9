// Package export contains the table export core: the paginator that splits a
// table into bounded batches, the table exporter that writes one table to a
// file, and the orchestrator that runs many table exports concurrently and
// folds their outcomes into a single report.
package export

import (
	"time"

	"github.com/dustin/go-humanize"
)

const unknownSize = "Unknown"

// TableDescriptor identifies a single table, the unit of work of an export run.
type TableDescriptor struct {
	Name   string
	Schema string
}

func (t TableDescriptor) String() string {
	return t.Schema + "." + t.Name
}

// TableStats holds the row count and storage footprint of a table. They are
// only used to order the schedule and for reporting.
type TableStats struct {
	Descriptor TableDescriptor
	RowCount   uint64
	SizeBytes  uint64
	HumanSize  string
}

func NewTableStats(table TableDescriptor, rowCount, sizeBytes uint64) TableStats {
	return TableStats{
		Descriptor: table,
		RowCount:   rowCount,
		SizeBytes:  sizeBytes,
		HumanSize:  humanize.IBytes(sizeBytes),
	}
}

// UnknownStats is used when the stats lookup of a table fails during the
// scheduling pass. The table is still scheduled.
func UnknownStats(table TableDescriptor) TableStats {
	return TableStats{Descriptor: table, HumanSize: unknownSize}
}

// Column is a table column in ordinal order.
type Column struct {
	Name     string
	DataType string
}

func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	return names
}

// RowBatch is a bounded group of rows starting at Offset.
type RowBatch struct {
	Offset uint64
	Rows   [][]any
}

// ExportTask is owned by the worker executing it until the export completes.
type ExportTask struct {
	Stats      TableStats
	OutputPath string
}

// ExportOutcome is the terminal record of one table export. Use Succeeded or
// Failed to create one.
type ExportOutcome struct {
	TableName   string
	Succeeded   bool
	RowsWritten uint64
	OutputPath  string
	Err         error
	Duration    time.Duration
}

func Succeeded(tableName string, rowsWritten uint64, outputPath string, duration time.Duration) ExportOutcome {
	return ExportOutcome{
		TableName:   tableName,
		Succeeded:   true,
		RowsWritten: rowsWritten,
		OutputPath:  outputPath,
		Duration:    duration,
	}
}

func Failed(tableName string, err error, duration time.Duration) ExportOutcome {
	return ExportOutcome{
		TableName: tableName,
		Err:       err,
		Duration:  duration,
	}
}
