package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/block/tabexport/pkg/export"
	"github.com/block/tabexport/pkg/test"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExportRunner(t *testing.T) {
	_, err := NewExportRunner(&ExportRunnerConfig{Format: "csv"}, logrus.New())
	require.ErrorIs(t, err, export.ErrInvalidChunkSize)

	_, err = NewExportRunner(&ExportRunnerConfig{ChunkSize: 10, Format: "xlsx"}, logrus.New())
	require.ErrorContains(t, err, "unsupported format")

	_, err = NewExportRunner(&ExportRunnerConfig{ChunkSize: 10, Format: "csv", ReportFile: "report.xml"}, logrus.New())
	require.ErrorContains(t, err, "unsupported report file")

	er, err := NewExportRunner(&ExportRunnerConfig{ChunkSize: 10, Format: "csv"}, logrus.New())
	require.NoError(t, err)
	runID := er.Prepare()
	assert.Len(t, runID, 36)
	assert.Equal(t, runID, er.Prepare())
	require.NoError(t, er.Close())
}

func TestExportRunnerConnectionError(t *testing.T) {
	er, err := NewExportRunner(&ExportRunnerConfig{
		Host:      "127.0.0.1:1",
		Username:  "nobody",
		Database:  "shop",
		Threads:   2,
		ChunkSize: 10,
		Format:    "csv",
		OutputDir: t.TempDir(),
	}, logrus.New())
	require.NoError(t, err)
	defer er.Close()

	_, err = er.Run(context.Background())
	require.ErrorIs(t, err, export.ErrConnection)
	assert.Equal(t, Errored, StatusOf(nil, err))
}

func TestExportRunnerRun(t *testing.T) {
	cfg := test.RequireDB(t)
	test.RunSQL(t, `DROP DATABASE IF EXISTS tabexport_shop`)
	test.RunSQL(t, `CREATE DATABASE tabexport_shop`)
	test.RunSQL(t, `CREATE TABLE tabexport_shop.users (
		id int NOT NULL AUTO_INCREMENT,
		name varchar(255) NOT NULL,
		created_at datetime NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	)`)
	test.RunSQL(t, `CREATE TABLE tabexport_shop.orders (
		id bigint NOT NULL,
		user_id int NOT NULL,
		total decimal(10,2) NULL,
		PRIMARY KEY (id)
	)`)
	test.RunSQL(t, `CREATE TABLE tabexport_shop.products (id int NOT NULL PRIMARY KEY)`)
	test.RunSQL(t, `CREATE VIEW tabexport_shop.big_orders AS SELECT * FROM tabexport_shop.orders WHERE total > 100`)
	test.RunSQL(t, `INSERT INTO tabexport_shop.users (name) VALUES ('alice'), ('bob'), ('carol')`)
	test.RunSQL(t, `INSERT INTO tabexport_shop.orders VALUES (1, 1, 9.99), (2, 1, NULL), (3, 2, 120.00), (4, 3, 5.00)`)

	dir := t.TempDir()
	er, err := NewExportRunner(&ExportRunnerConfig{
		Host:           cfg.Addr,
		Username:       cfg.User,
		Password:       cfg.Passwd,
		Database:       "tabexport_shop",
		Threads:        2,
		MaxConnections: 4,
		CommandTimeout: time.Minute,
		ChunkSize:      1,
		OutputDir:      dir,
		Format:         "csv",
		ReportFile:     filepath.Join(dir, "report.json"),
		MetricsFile:    filepath.Join(dir, "tabexport.prom"),
	}, logrus.New())
	require.NoError(t, err)

	report, err := er.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.TotalTables)
	assert.Equal(t, 3, report.Successful)
	assert.Equal(t, 4, er.db.Stats().MaxOpenConnections)

	orders := test.FindFiles(t, dir, "orders_*.csv", true)
	require.Len(t, orders, 1)
	assert.Equal(t, [][]string{
		{"id", "user_id", "total"},
		{"1", "1", "9.99"},
		{"2", "1", ""},
		{"3", "2", "120.00"},
		{"4", "3", "5.00"},
	}, test.ReadCSV(t, orders[0]))
	products := test.FindFiles(t, dir, "products_*.csv", true)
	assert.Equal(t, [][]string{{"id"}}, test.ReadCSV(t, products[0]))
	test.FindFiles(t, dir, "report.json", true)
	test.FindFiles(t, dir, "tabexport.prom", true)

	require.NoError(t, er.Close())
	// Close always releases the pool.
	require.Error(t, er.db.Ping())

	// A table that does not exist fails on its own.
	er2, err := NewExportRunner(&ExportRunnerConfig{
		Host:      cfg.Addr,
		Username:  cfg.User,
		Password:  cfg.Passwd,
		Database:  "tabexport_shop",
		Threads:   1,
		ChunkSize: 10,
		OutputDir: t.TempDir(),
		Format:    "parquet",
	}, logrus.New())
	require.NoError(t, err)
	defer er2.Close()
	outcome, err := er2.ExportTable(context.Background(), "ghost_table")
	require.NoError(t, err)
	require.False(t, outcome.Succeeded)
	assert.Equal(t, export.TableNotFound, export.KindOf(outcome.Err))

	stats, err := er2.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 3)
}
