package runner

import (
	"fmt"
	"io"

	"github.com/block/tabexport/pkg/export"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

var (
	headerfmt = color.New(color.FgGreen, color.Underline).SprintFunc()
	okfmt     = color.New(color.FgGreen).SprintFunc()
	failfmt   = color.New(color.FgRed).SprintFunc()
)

func addHeader(table *uitable.Table, cols ...string) {
	headerCols := make([]interface{}, len(cols))
	for i, col := range cols {
		headerCols[i] = headerfmt(col)
	}
	table.AddRow(headerCols...)
}

// PrintSummary writes the per-table result of a run in scheduling order,
// followed by the failed tables and their errors.
func PrintSummary(w io.Writer, report *export.ExportReport) {
	rec := report.Record()
	fmt.Fprintf(w, "Run %s: %d/%d tables exported successfully\n", rec.RunID, rec.SuccessfulDownloads, rec.TotalTables)

	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	addHeader(table, "", "TABLE", "ROWS", "SIZE", "FILE")
	for _, info := range rec.TableInfo {
		outcome, ok := report.Outcome(info.TableName)
		if !ok {
			continue
		}
		if outcome.Succeeded {
			table.AddRow(okfmt("✓"), info.TableName, humanize.Comma(int64(outcome.RowsWritten)), info.Size, outcome.OutputPath)
		} else {
			table.AddRow(failfmt("✗"), info.TableName, humanize.Comma(int64(info.RowCount)), info.Size, "")
		}
	}
	fmt.Fprintln(w, table)

	if len(rec.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, failfmt("Failed tables:"))
	for _, f := range rec.Failures {
		fmt.Fprintf(w, "  %s (%s): %s\n", f.TableName, f.Kind, f.Error)
	}
}

// PrintStats writes table stats in the order they would be exported.
func PrintStats(w io.Writer, stats []export.TableStats) {
	var rows, size uint64
	table := uitable.New()
	addHeader(table, "TABLE", "ROWS", "SIZE")
	for _, s := range stats {
		table.AddRow(s.Descriptor.Name, humanize.Comma(int64(s.RowCount)), s.HumanSize)
		rows += s.RowCount
		size += s.SizeBytes
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "Total: %d tables, %s rows, %s\n", len(stats), humanize.Comma(int64(rows)), humanize.IBytes(size))
}
