// Package test holds helpers shared by the tests that need a live MySQL
// server or read export files back.
package test

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/block/spirit/pkg/dbconn"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func DSN() string {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "msandbox:msandbox@tcp(127.0.0.1:8030)/test"
	}

	return dsn
}

// RequireDB skips the test when no MySQL server answers on DSN().
func RequireDB(t *testing.T) *mysql.Config {
	t.Helper()
	cfg, err := mysql.ParseDSN(DSN())
	require.NoError(t, err)
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("no MySQL server at %s: %v", cfg.Addr, err)
	}

	return cfg
}

func RunSQL(t *testing.T, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	require.NoError(t, err)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("error closing db: %v", closeErr)
		}
	}()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

func SetupDB(cfg *mysql.Config, threads int) (*sql.DB, error) {
	dbConfig := dbconn.NewDBConfig()
	dbConfig.MaxOpenConnections = threads

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.User, cfg.Passwd, cfg.Addr, cfg.DBName)
	db, err := dbconn.New(dsn, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %s as user: %s, err:%w", cfg.DBName, cfg.User, err)
	}

	return db, nil
}

// FindFiles returns the files in dir matching pattern.
func FindFiles(t *testing.T, dir, pattern string, ensureFile bool) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	if ensureFile {
		require.NotEmpty(t, matches)
	}
	if len(matches) > 0 {
		return matches
	}

	return []string{}
}

func ReadCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return records
}
