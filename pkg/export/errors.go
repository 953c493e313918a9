package export

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind int32

const (
	UnknownError ErrorKind = iota
	ConnectionError
	TableNotFound
	QueryTimeout
	QueryError
	WriteError
	UploadError
	SchedulingError
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionError:
		return "ConnectionError"
	case TableNotFound:
		return "TableNotFound"
	case QueryTimeout:
		return "QueryTimeout"
	case QueryError:
		return "QueryError"
	case WriteError:
		return "WriteError"
	case UploadError:
		return "UploadError"
	case SchedulingError:
		return "SchedulingError"
	}

	return "UnknownError"
}

var (
	ErrConnection       = errors.New("could not connect to database")
	ErrTableNotFound    = errors.New("table does not exist")
	ErrScheduling       = errors.New("export task could not be scheduled")
	ErrInvalidChunkSize = errors.New("chunk size must be at least 1")
)

// TableError is an error scoped to a single table (or, for ConnectionError,
// to the whole run).
type TableError struct {
	Kind  ErrorKind
	Table string
	Op    string
	Err   error
}

func (e *TableError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}

	return fmt.Sprintf("%s: table '%s': %s: %v", e.Kind, e.Table, e.Op, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can use errors.Is(err, ErrTableNotFound).
func (e *TableError) Is(target error) bool {
	switch target {
	case ErrTableNotFound:
		return e.Kind == TableNotFound
	case ErrConnection:
		return e.Kind == ConnectionError
	case ErrScheduling:
		return e.Kind == SchedulingError
	}

	return false
}

// KindOf returns the kind of the first TableError in err's chain.
func KindOf(err error) ErrorKind {
	var te *TableError
	if errors.As(err, &te) {
		return te.Kind
	}

	return UnknownError
}

func queryErr(table, op string, err error) error {
	kind := QueryError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = QueryTimeout
	case errors.Is(err, ErrTableNotFound):
		kind = TableNotFound
	}

	return &TableError{Kind: kind, Table: table, Op: op, Err: err}
}

func writeErr(table, op string, err error) error {
	return &TableError{Kind: WriteError, Table: table, Op: op, Err: err}
}

func schedulingErr(table string, err error) error {
	return &TableError{Kind: SchedulingError, Table: table, Op: "schedule", Err: err}
}

// NewConnectionError wraps a pool creation failure, the only error that
// aborts a run.
func NewConnectionError(err error) error {
	return &TableError{Kind: ConnectionError, Op: "connect", Err: err}
}
