// Package parquet writes export files in the Apache Parquet format.
package parquet

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/block/tabexport/pkg/export"
)

// mysqlToArrowType maps an information_schema COLUMN_TYPE to an arrow type.
// Types without a lossless numeric or temporal mapping are written as strings.
func mysqlToArrowType(columnType string) arrow.DataType {
	sqlType := strings.ToLower(strings.TrimSpace(columnType))
	unsigned := strings.Contains(sqlType, "unsigned")
	// Remove length specification and attributes if present
	if idx := strings.IndexAny(sqlType, "( "); idx != -1 {
		sqlType = sqlType[:idx]
	}

	switch sqlType {
	case "varbinary", "binary", "blob", "tinyblob", "mediumblob", "longblob":
		return arrow.BinaryTypes.Binary
	case "smallint", "tinyint", "mediumint":
		return arrow.PrimitiveTypes.Int32
	case "int", "integer":
		if unsigned {
			return arrow.PrimitiveTypes.Int64
		}

		return arrow.PrimitiveTypes.Int32
	case "bigint":
		if unsigned {
			return arrow.PrimitiveTypes.Uint64
		}

		return arrow.PrimitiveTypes.Int64
	case "float", "double", "real":
		return arrow.PrimitiveTypes.Float64
	case "date", "datetime", "timestamp":
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema converts the columns of a table to an arrow schema. Every field
// is nullable.
func ArrowSchema(columns []export.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		fields[i] = arrow.Field{Name: col.Name, Type: mysqlToArrowType(col.DataType), Nullable: true}
	}

	return arrow.NewSchema(fields, nil)
}
