package boot

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

const versionStmt = "select substr(version(), 1, 1)"

func TestIsMySQLVersionCompatible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("8"))
	require.True(t, isMySQLVersionCompatible(context.Background(), db))

	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("5"))
	require.False(t, isMySQLVersionCompatible(context.Background(), db))

	// Unparsable versions can't be told apart from old servers.
	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("x"))
	require.False(t, isMySQLVersionCompatible(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
