// Package format holds the output file formats of an export.
package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/block/tabexport/pkg/export"
	"github.com/block/tabexport/pkg/parquet"
)

const (
	CSVName     = "csv"
	ParquetName = "parquet"
)

// New returns the format registered under name.
func New(name string) (export.Format, error) {
	switch name {
	case CSVName, "":
		return CSV{}, nil
	case ParquetName:
		return parquet.NewFormat(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q, expected %q or %q", name, CSVName, ParquetName)
	}
}

// CSV writes a header line of column names followed by one record per row.
// NULL is written as an empty field.
type CSV struct{}

var (
	_ export.Format   = CSV{}
	_ export.Appender = CSV{}
)

func (CSV) Extension() string {
	return CSVName
}

// Create writes the header to a new file. It fails if path already exists.
func (CSV) Create(path string, columns []export.Column) (export.Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	w := &csvWriter{f: f, w: csv.NewWriter(f)}
	if err := w.w.Write(export.ColumnNames(columns)); err != nil {
		_ = f.Close()

		return nil, err
	}

	return w, nil
}

// Append opens an existing file for more rows. The header is not repeated.
func (CSV) Append(path string, _ []export.Column) (export.Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, err
	}

	return &csvWriter{f: f, w: csv.NewWriter(f)}, nil
}

type csvWriter struct {
	f      *os.File
	w      *csv.Writer
	record []string
}

func (c *csvWriter) WriteRows(rows [][]any) error {
	for _, row := range rows {
		c.record = c.record[:0]
		for _, v := range row {
			c.record = append(c.record, formatValue(v))
		}
		if err := c.w.Write(c.record); err != nil {
			return err
		}
	}
	c.w.Flush()

	return c.w.Error()
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if closeErr := c.f.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		err = errors.Join(err, closeErr)
	}

	return err
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.Nanosecond() != 0 {
			return val.Format("2006-01-02 15:04:05.999999")
		}

		return val.Format(time.DateTime)
	default:
		return fmt.Sprint(val)
	}
}
