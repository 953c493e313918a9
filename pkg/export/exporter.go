package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RunTimestampLayout is the timestamp qualifier of output file names.
const RunTimestampLayout = "20060102_150405"

const DefaultChunkSize = 10000

// TableExporter exports one table end to end. It never returns an error:
// every table scoped failure ends up in the returned ExportOutcome.
type TableExporter struct {
	source         Source
	format         Format
	uploader       Uploader
	observer       Observer
	chunkThreshold uint64
	runTimestamp   time.Time
}

type ExporterConfig struct {
	Source   Source
	Format   Format
	Uploader Uploader
	Observer Observer
	// Tables with more rows than ChunkThreshold are exported in batches of
	// ChunkThreshold rows.
	ChunkThreshold uint64
	RunTimestamp   time.Time
}

func NewTableExporter(cfg *ExporterConfig) (*TableExporter, error) {
	if cfg.Source == nil {
		return nil, errors.New("export source is required")
	}
	if cfg.Format == nil {
		return nil, errors.New("export format is required")
	}
	if cfg.ChunkThreshold < 1 {
		return nil, ErrInvalidChunkSize
	}
	e := &TableExporter{
		source:         cfg.Source,
		format:         cfg.Format,
		uploader:       cfg.Uploader,
		observer:       cfg.Observer,
		chunkThreshold: cfg.ChunkThreshold,
		runTimestamp:   cfg.RunTimestamp,
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}
	if e.runTimestamp.IsZero() {
		e.runTimestamp = time.Now()
	}

	return e, nil
}

// fileNameEscaper percent-encodes the characters of a table name that would
// split it into more than one path element. MySQL allows them in quoted
// identifiers.
var fileNameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", `\`, "%5C", "\x00", "%00")

// OutputPath returns {table}_{run timestamp}.{ext} inside outputDir. The
// file name is always a single element directly under outputDir; the suffix
// keeps it from ever being "." or "..".
func (e *TableExporter) OutputPath(outputDir, table string) string {
	name := fmt.Sprintf("%s_%s.%s", fileNameEscaper.Replace(table), e.runTimestamp.Format(RunTimestampLayout), e.format.Extension())

	return filepath.Join(outputDir, name)
}

// Stats looks up the row count and storage footprint of a table.
func (e *TableExporter) Stats(ctx context.Context, table TableDescriptor) (TableStats, error) {
	stats, err := e.source.Stats(ctx, table)
	if err != nil {
		return UnknownStats(table), queryErr(table.Name, "stats", err)
	}

	return stats, nil
}

// ExportTable exports a single table with the given chunk threshold.
func (e *TableExporter) ExportTable(ctx context.Context, tableName, schema, outputDir string, chunkThreshold uint64) ExportOutcome {
	table := TableDescriptor{Name: tableName, Schema: schema}
	if chunkThreshold < 1 {
		return Failed(tableName, schedulingErr(tableName, ErrInvalidChunkSize), 0)
	}
	te := *e
	te.chunkThreshold = chunkThreshold

	return te.Export(ctx, ExportTask{
		Stats:      TableStats{Descriptor: table},
		OutputPath: e.OutputPath(outputDir, tableName),
	})
}

// Export runs one export task.
func (e *TableExporter) Export(ctx context.Context, task ExportTask) (outcome ExportOutcome) {
	start := time.Now()
	table := task.Stats.Descriptor
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(table.Name, schedulingErr(table.Name, fmt.Errorf("export panicked: %v", r)), time.Since(start))
		}
		e.observer.TableFinished(outcome)
	}()
	e.observer.TableStarted(task)

	rowsWritten, err := e.export(ctx, table, task.OutputPath)
	if err != nil {
		return Failed(table.Name, err, time.Since(start))
	}
	if e.uploader != nil {
		if err := e.uploader.Upload(ctx, task.OutputPath); err != nil {
			return Failed(table.Name, &TableError{Kind: UploadError, Table: table.Name, Op: "upload", Err: err}, time.Since(start))
		}
	}

	return Succeeded(table.Name, rowsWritten, task.OutputPath, time.Since(start))
}

func (e *TableExporter) export(ctx context.Context, table TableDescriptor, path string) (uint64, error) {
	// The column list doubles as the existence check.
	columns, err := e.source.Columns(ctx, table)
	if err != nil {
		return 0, queryErr(table.Name, "columns", err)
	}
	if len(columns) == 0 {
		return 0, &TableError{Kind: TableNotFound, Table: table.Name, Op: "columns",
			Err: fmt.Errorf("table '%s' does not exist", table)}
	}

	stats, err := e.Stats(ctx, table)
	if err != nil {
		return 0, err
	}

	switch {
	case stats.RowCount == 0:
		return 0, e.writeHeaderOnly(table, path, columns)
	case stats.RowCount <= e.chunkThreshold:
		return e.writeAll(ctx, table, path, columns)
	default:
		return e.writeChunked(ctx, table, path, columns, stats.RowCount)
	}
}

func (e *TableExporter) writeHeaderOnly(table TableDescriptor, path string, columns []Column) error {
	w, err := e.format.Create(path, columns)
	if err != nil {
		return writeErr(table.Name, "create", err)
	}
	if err := w.Close(); err != nil {
		return writeErr(table.Name, "close", err)
	}

	return nil
}

func (e *TableExporter) writeAll(ctx context.Context, table TableDescriptor, path string, columns []Column) (uint64, error) {
	rows, err := e.source.FetchAll(ctx, table)
	if err != nil {
		return 0, queryErr(table.Name, "fetch", err)
	}
	if len(rows) == 0 {
		return 0, e.writeHeaderOnly(table, path, columns)
	}
	w, err := e.format.Create(path, columns)
	if err != nil {
		return 0, writeErr(table.Name, "create", err)
	}
	if err := writeAndClose(w, rows); err != nil {
		return 0, writeErr(table.Name, "write", err)
	}
	total := uint64(len(rows))
	e.observer.BatchWritten(table, total, total)

	return total, nil
}

// writeChunked writes the first batch to a fresh file and appends the rest.
// Formats that cannot append keep the first writer open instead.
func (e *TableExporter) writeChunked(ctx context.Context, table TableDescriptor, path string, columns []Column, totalRows uint64) (uint64, error) {
	pager, err := NewPaginator(e.source, table, e.chunkThreshold, totalRows)
	if err != nil {
		return 0, err
	}
	appender, reopen := e.format.(Appender)

	var w Writer
	var written uint64
	defer func() {
		if w != nil {
			_ = w.Close()
		}
	}()
	for batch, err := range pager.Batches(ctx) {
		if err != nil {
			return written, queryErr(table.Name, fmt.Sprintf("fetch offset %d", written), err)
		}
		if w == nil {
			if written == 0 {
				w, err = e.format.Create(path, columns)
			} else {
				w, err = appender.Append(path, columns)
			}
			if err != nil {
				return written, writeErr(table.Name, "open", err)
			}
		}
		if err := w.WriteRows(batch.Rows); err != nil {
			return written, writeErr(table.Name, "write", err)
		}
		if reopen {
			err = w.Close()
			w = nil
			if err != nil {
				return written, writeErr(table.Name, "close", err)
			}
		}
		written += uint64(len(batch.Rows))
		e.observer.BatchWritten(table, written, totalRows)
	}
	if written == 0 {
		// Every row went away between the count and the first fetch.
		return 0, e.writeHeaderOnly(table, path, columns)
	}
	if w != nil {
		err = w.Close()
		w = nil
		if err != nil {
			return written, writeErr(table.Name, "close", err)
		}
	}

	return written, nil
}

func writeAndClose(w Writer, rows [][]any) error {
	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()

		return err
	}

	return w.Close()
}
