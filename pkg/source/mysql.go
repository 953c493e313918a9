// Package source reads table metadata and rows from MySQL.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/block/tabexport/pkg/export"
	"github.com/block/tabexport/pkg/query"
	"github.com/go-sql-driver/mysql"
	"github.com/siddontang/loggers"
)

// DefaultCommandTimeout bounds every statement the source sends.
const DefaultCommandTimeout = 5 * time.Minute

// ER_NO_SUCH_TABLE
const errNoSuchTable = 1146

const (
	listTablesStmt = "SELECT TABLE_NAME FROM information_schema.TABLES " +
		"WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	columnsStmt = "SELECT COLUMN_NAME, COLUMN_TYPE FROM information_schema.COLUMNS " +
		"WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
	keyColumnsStmt = "SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE " +
		"WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY ORDINAL_POSITION"
	sizeStmt = "SELECT COALESCE(DATA_LENGTH, 0) + COALESCE(INDEX_LENGTH, 0) FROM information_schema.TABLES " +
		"WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?"
)

// MySQL implements export.Source on a shared connection pool. It is safe for
// concurrent use; every call borrows a connection for the duration of one
// statement.
type MySQL struct {
	db             *sql.DB
	commandTimeout time.Duration
	logger         loggers.Advanced

	km   sync.Mutex // protects keys
	keys map[export.TableDescriptor][]string
}

type MySQLConfig struct {
	DB             *sql.DB
	CommandTimeout time.Duration
	Logger         loggers.Advanced
}

var _ export.Source = (*MySQL)(nil)

func NewMySQL(cfg *MySQLConfig) (*MySQL, error) {
	if cfg.DB == nil {
		return nil, errors.New("source database is required")
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &MySQL{
		db:             cfg.DB,
		commandTimeout: timeout,
		logger:         cfg.Logger,
		keys:           make(map[export.TableDescriptor][]string),
	}, nil
}

// ListTables returns the base tables of schema in name order. Views are not
// exported.
func (m *MySQL) ListTables(ctx context.Context, schema string) ([]export.TableDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, listTablesStmt, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []export.TableDescriptor
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, export.TableDescriptor{Name: name, Schema: schema})
	}

	return tables, rows.Err()
}

// Columns returns the columns of a table in ordinal order. A table that does
// not exist has no columns.
func (m *MySQL) Columns(ctx context.Context, table export.TableDescriptor) ([]export.Column, error) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, columnsStmt, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []export.Column
	for rows.Next() {
		var col export.Column
		if err := rows.Scan(&col.Name, &col.DataType); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	return cols, rows.Err()
}

// KeyColumns returns the primary key columns of a table, or nil when it has
// none. The result is cached for the lifetime of the source.
func (m *MySQL) KeyColumns(ctx context.Context, table export.TableDescriptor) ([]string, error) {
	m.km.Lock()
	keys, ok := m.keys[table]
	m.km.Unlock()
	if ok {
		return keys, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()
	rows, err := m.db.QueryContext(ctx, keyColumnsStmt, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 && m.logger != nil {
		m.logger.Warnf("table '%s' has no primary key, pages are read in server order", table)
	}

	m.km.Lock()
	m.keys[table] = keys
	m.km.Unlock()

	return keys, nil
}

// Stats returns the exact row count of a table and its data plus index size.
func (m *MySQL) Stats(ctx context.Context, table export.TableDescriptor) (export.TableStats, error) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	var count uint64
	if err := m.db.QueryRowContext(ctx, query.CountRows(table.Schema, table.Name)).Scan(&count); err != nil {
		return export.UnknownStats(table), notFound(err)
	}
	var size uint64
	err := m.db.QueryRowContext(ctx, sizeStmt, table.Schema, table.Name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return export.UnknownStats(table), fmt.Errorf("%w: %s", export.ErrTableNotFound, table)
	}
	if err != nil {
		return export.UnknownStats(table), err
	}

	return export.NewTableStats(table, count, size), nil
}

// FetchAll reads every row of a table in one statement.
func (m *MySQL) FetchAll(ctx context.Context, table export.TableDescriptor) ([][]any, error) {
	keys, err := m.KeyColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	stmt, err := query.SelectAll(table.Schema, table.Name, keys, false)
	if err != nil {
		return nil, err
	}

	return m.fetch(ctx, stmt)
}

// FetchPage reads at most limit rows starting at offset, ordered by the
// primary key when the table has one.
func (m *MySQL) FetchPage(ctx context.Context, table export.TableDescriptor, limit, offset uint64) ([][]any, error) {
	keys, err := m.KeyColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	stmt, err := query.SelectAll(table.Schema, table.Name, keys, true)
	if err != nil {
		return nil, err
	}

	return m.fetch(ctx, stmt, limit, offset)
}

func (m *MySQL) fetch(ctx context.Context, stmt string, args ...any) ([][]any, error) {
	ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}

	return out, rows.Err()
}

// notFound marks ER_NO_SUCH_TABLE with export.ErrTableNotFound.
func notFound(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errNoSuchTable {
		return fmt.Errorf("%w: %w", export.ErrTableNotFound, err)
	}

	return err
}
