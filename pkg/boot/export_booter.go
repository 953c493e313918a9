package boot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

const schemaExistsStmt = "SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?"

type ExportBooter struct {
	db        *sql.DB
	database  string
	outputDir string
}

type ExportBooterConfig struct {
	DB        *sql.DB
	Database  string
	OutputDir string
}

var _ Booter = (*ExportBooter)(nil)

func NewExportBooter(ebc *ExportBooterConfig) *ExportBooter {
	return &ExportBooter{
		db:        ebc.DB,
		database:  ebc.Database,
		outputDir: ebc.OutputDir,
	}
}

func (eb *ExportBooter) PreflightChecks(ctx context.Context) error {
	if !isMySQLVersionCompatible(ctx, eb.db) {
		return errors.New("MySQL 8.0 is required")
	}
	var count int
	if err := eb.db.QueryRowContext(ctx, schemaExistsStmt, eb.database).Scan(&count); err != nil {
		return fmt.Errorf("failed to look up schema %s: %w", eb.database, err)
	}
	if count == 0 {
		return fmt.Errorf("schema %s does not exist", eb.database)
	}

	return nil
}

// Setup creates the output directory when it is missing.
func (eb *ExportBooter) Setup(_ context.Context) error {
	if err := os.MkdirAll(eb.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", eb.outputDir, err)
	}
	info, err := os.Stat(eb.outputDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", eb.outputDir)
	}

	return nil
}
