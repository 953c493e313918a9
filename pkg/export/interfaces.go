package export

import (
	"context"
)

// PageFetcher returns at most limit rows of a table starting at offset.
type PageFetcher interface {
	FetchPage(ctx context.Context, table TableDescriptor, limit, offset uint64) ([][]any, error)
}

// Source is the database side of an export.
type Source interface {
	PageFetcher
	ListTables(ctx context.Context, schema string) ([]TableDescriptor, error)
	Columns(ctx context.Context, table TableDescriptor) ([]Column, error)
	Stats(ctx context.Context, table TableDescriptor) (TableStats, error)
	FetchAll(ctx context.Context, table TableDescriptor) ([][]any, error)
}

// Writer writes rows to one output file. There is never more than one Writer
// open on a file.
type Writer interface {
	WriteRows(rows [][]any) error
	Close() error
}

// Format creates output files. Create must fail rather than overwrite an
// existing file, and writes the header before returning.
type Format interface {
	Extension() string
	Create(path string, columns []Column) (Writer, error)
}

// Appender is implemented by formats whose files can be re-opened to add rows
// without rewriting the header. Formats that are not Appenders keep the
// writer returned by Create open for the whole table.
type Appender interface {
	Append(path string, columns []Column) (Writer, error)
}

// Uploader ships a finished output file to a remote destination.
type Uploader interface {
	Upload(ctx context.Context, localPath string) error
}
