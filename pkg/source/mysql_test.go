package source

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/block/tabexport/pkg/export"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var users = export.TableDescriptor{Name: "users", Schema: "shop"}

func newMock(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	src, err := NewMySQL(&MySQLConfig{DB: db, CommandTimeout: time.Second, Logger: logrus.New()})
	require.NoError(t, err)

	return src, mock
}

func TestNewMySQL(t *testing.T) {
	_, err := NewMySQL(&MySQLConfig{})
	require.Error(t, err)

	src, _ := newMock(t)
	assert.Equal(t, time.Second, src.commandTimeout)
}

func TestListTables(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(listTablesStmt)).WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders").AddRow("users"))

	tables, err := src.ListTables(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, []export.TableDescriptor{{Name: "orders", Schema: "shop"}, {Name: "users", Schema: "shop"}}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesEmpty(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(listTablesStmt)).WithArgs("empty").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))

	tables, err := src.ListTables(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestColumns(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(columnsStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE"}).
			AddRow("id", "int unsigned").
			AddRow("name", "varchar(64)"))

	cols, err := src.Columns(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, []export.Column{{Name: "id", DataType: "int unsigned"}, {Name: "name", DataType: "varchar(64)"}}, cols)

	// A missing table has no columns.
	mock.ExpectQuery(regexp.QuoteMeta(columnsStmt)).WithArgs("shop", "ghost_table").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE"}))
	cols, err = src.Columns(context.Background(), export.TableDescriptor{Name: "ghost_table", Schema: "shop"})
	require.NoError(t, err)
	assert.Empty(t, cols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyColumnsCached(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(keyColumnsStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("tenant_id").AddRow("id"))

	keys, err := src.KeyColumns(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_id", "id"}, keys)

	// Served from the cache, no second query expected.
	keys, err = src.KeyColumns(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_id", "id"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `shop`.`users`")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(sizeStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(16384))

	stats, err := src.Stats(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.RowCount)
	assert.Equal(t, uint64(16384), stats.SizeBytes)
	assert.Equal(t, "16 KiB", stats.HumanSize)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsMissingTable(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `shop`.`ghost_table`")).
		WillReturnError(&mysql.MySQLError{Number: errNoSuchTable, Message: "Table 'shop.ghost_table' doesn't exist"})

	stats, err := src.Stats(context.Background(), export.TableDescriptor{Name: "ghost_table", Schema: "shop"})
	require.ErrorIs(t, err, export.ErrTableNotFound)
	assert.Equal(t, "Unknown", stats.HumanSize)
}

func TestFetchPageOrderedByKey(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(keyColumnsStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `shop`.`users` ORDER BY `id` LIMIT ? OFFSET ?")).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), []byte("carol")))

	rows, err := src.FetchPage(context.Background(), users, 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0][0])
	assert.Equal(t, []byte("carol"), rows[0][1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchAllWithoutKey(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(keyColumnsStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `shop`.`users`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "alice").
			AddRow(int64(2), nil))

	rows, err := src.FetchAll(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "alice"}, {int64(2), nil}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchError(t *testing.T) {
	src, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(keyColumnsStmt)).WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	boom := errors.New("lost connection")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `shop`.`users` ORDER BY `id`")).WillReturnError(boom)

	_, err := src.FetchAll(context.Background(), users)
	require.ErrorIs(t, err, boom)
}
