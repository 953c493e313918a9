// Package boot contains the checks and setup that run before an export:
// the server must be MySQL 8 or later, the schema must exist and the output
// directory must be writable.
package boot

import (
	"context"
	"database/sql"
	"strconv"
)

const minMySQLVersion = 8

type Booter interface {
	PreflightChecks(ctx context.Context) error
	Setup(ctx context.Context) error
}

// isMySQLVersionCompatible returns true if we can positively identify this as MySQL 8 or later.
func isMySQLVersionCompatible(ctx context.Context, db *sql.DB) bool {
	var version string
	if err := db.QueryRowContext(ctx, "select substr(version(), 1, 1)").Scan(&version); err != nil {
		return false // can't tell
	}

	intVer, err := strconv.Atoi(version)
	if err != nil {
		return false // can't tell
	}

	return intVer >= minMySQLVersion
}
