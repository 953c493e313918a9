package boot

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestExportBooterPreflightChecks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	booter := NewExportBooter(&ExportBooterConfig{DB: db, Database: "shop", OutputDir: t.TempDir()})

	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("8"))
	mock.ExpectQuery(regexp.QuoteMeta(schemaExistsStmt)).WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(1))
	require.NoError(t, booter.PreflightChecks(context.Background()))

	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("8"))
	mock.ExpectQuery(regexp.QuoteMeta(schemaExistsStmt)).WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(0))
	require.ErrorContains(t, booter.PreflightChecks(context.Background()), "schema shop does not exist")

	mock.ExpectQuery(regexp.QuoteMeta(versionStmt)).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("5"))
	require.ErrorContains(t, booter.PreflightChecks(context.Background()), "MySQL 8.0 is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportBooterSetup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloaded_tables", "nested")
	booter := NewExportBooter(&ExportBooterConfig{OutputDir: dir})
	require.NoError(t, booter.Setup(context.Background()))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// Running setup again is a no-op.
	require.NoError(t, booter.Setup(context.Background()))

	file := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.Error(t, NewExportBooter(&ExportBooterConfig{OutputDir: file}).Setup(context.Background()))
}
