package parquet

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/block/tabexport/pkg/export"
)

const Extension = "parquet"

// Format writes snappy compressed parquet files. A parquet file can not be
// re-opened to add rows, so Format is not an export.Appender: the writer
// returned by Create stays open for the whole table and every WriteRows call
// becomes one row group.
type Format struct {
	props *parquet.WriterProperties
	pool  memory.Allocator
}

var _ export.Format = (*Format)(nil)

func NewFormat() *Format {
	return &Format{
		props: parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pool:  memory.NewGoAllocator(),
	}
}

func (f *Format) Extension() string {
	return Extension
}

// Create writes the schema of a new file. It fails if path already exists.
func (f *Format) Create(path string, columns []export.Column) (export.Writer, error) {
	schema := ArrowSchema(columns)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	writer, err := pqarrow.NewFileWriter(schema, file, f.props, pqarrow.DefaultWriterProps())
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	return &Writer{
		file:          file,
		writer:        writer,
		recordBuilder: array.NewRecordBuilder(f.pool, schema),
	}, nil
}

// Writer is not safe for concurrent use; an export owns its writer.
type Writer struct {
	file          *os.File
	writer        *pqarrow.FileWriter
	recordBuilder *array.RecordBuilder
	RowsWritten   uint64
}

func (w *Writer) WriteRows(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	for _, values := range rows {
		if err := w.appendRow(values); err != nil {
			return err
		}
	}
	record := w.recordBuilder.NewRecord()
	defer record.Release()
	if err := w.writer.Write(record); err != nil {
		return err
	}
	w.RowsWritten += uint64(len(rows))

	return nil
}

// Close writes the footer and closes the file.
func (w *Writer) Close() error {
	defer w.recordBuilder.Release()
	err := w.writer.Close()
	// The parquet writer closes its sink.
	if closeErr := w.file.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		err = errors.Join(err, closeErr)
	}

	return err
}

func (w *Writer) appendRow(values []any) error {
	fields := w.recordBuilder.Fields()
	if len(values) != len(fields) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(values), len(fields))
	}
	for i, field := range fields {
		if err := appendValue(field, values[i]); err != nil {
			return fmt.Errorf("column %s: %w", w.recordBuilder.Schema().Field(i).Name, err)
		}
	}

	return nil
}

func appendValue(field array.Builder, value any) error { //nolint:cyclop
	if value == nil {
		field.AppendNull()

		return nil
	}
	switch b := field.(type) {
	case *array.BinaryBuilder:
		byteVal, err := binaryVal(value)
		if err != nil {
			return err
		}
		b.Append(byteVal)
	case *array.StringBuilder:
		b.Append(strValue(value))
	case *array.Int32Builder:
		intValue, err := int32Val(value)
		if err != nil {
			return err
		}
		b.Append(intValue)
	case *array.Int64Builder:
		intValue, err := int64Val(value)
		if err != nil {
			return err
		}
		b.Append(intValue)
	case *array.Uint64Builder:
		uintValue, err := uint64Val(value)
		if err != nil {
			return err
		}
		b.Append(uintValue)
	case *array.Float64Builder:
		floatValue, err := float64Val(value)
		if err != nil {
			return err
		}
		b.Append(floatValue)
	case *array.TimestampBuilder:
		ts, err := timestampVal(value)
		if err != nil {
			return err
		}
		b.Append(ts)
	default:
		return fmt.Errorf("unsupported builder %T", field)
	}

	return nil
}

func binaryVal(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %v to []byte", value)
	}
}

func strValue(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

func int64Val(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}

		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to int64", value)
	}
}

func int32Val(value any) (int32, error) {
	var intValue int64
	var err error
	switch v := value.(type) {
	case []byte:
		intValue, err = strconv.ParseInt(string(v), 10, 32)
	case string:
		intValue, err = strconv.ParseInt(v, 10, 32)
	default:
		intValue, err = int64Val(value)
		if err == nil && (intValue < math.MinInt32 || intValue > math.MaxInt32) {
			err = fmt.Errorf("%d overflows int32", intValue)
		}
	}
	if err != nil {
		return 0, err
	}

	return int32(intValue), nil
}

func uint64Val(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%d is negative", v)
		}

		return uint64(v), nil
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to uint64", value)
	}
}

func float64Val(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to float64", value)
	}
}

func timestampVal(value any) (arrow.Timestamp, error) {
	switch v := value.(type) {
	case time.Time:
		return arrow.Timestamp(v.UnixMicro()), nil
	case []byte:
		return arrow.TimestampFromString(string(v), arrow.Microsecond)
	case string:
		return arrow.TimestampFromString(v, arrow.Microsecond)
	default:
		return 0, fmt.Errorf("cannot convert %v to timestamp", value)
	}
}
