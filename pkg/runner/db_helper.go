package runner

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/block/spirit/pkg/dbconn"
	"github.com/go-sql-driver/mysql"
)

// DBCreds is a struct to hold database credentials that's common to all commands.
type DBCreds struct {
	Host     string `name:"host" help:"Hostname" optional:"" default:"127.0.0.1:3306" env:"DB_HOST"`
	Username string `name:"username" help:"User" optional:"" default:"msandbox" env:"DB_USER"`
	Password string `name:"password" help:"Password" optional:"" default:"msandbox" env:"DB_PASSWORD"`
	Database string `name:"database" help:"Schema to export" optional:"" default:"test" env:"DB_NAME"`
}

// DBConfig is a struct to hold database configuration that's common to all commands.
type DBConfig struct {
	Threads        int           `name:"threads" help:"Number of tables exported concurrently" optional:"" default:"3" env:"MAX_CONCURRENT_DOWNLOADS"`
	MaxConnections int           `name:"max-connections" help:"Size of the connection pool, raised to threads if lower" optional:"" default:"10" env:"MAX_CONNECTIONS"`
	CommandTimeout time.Duration `name:"command-timeout" help:"Timeout of every statement sent to the server" optional:"" default:"5m"`
}

func setupDBConfig(cfg *DBConfig) *dbconn.DBConfig {
	dbConfig := dbconn.NewDBConfig()
	// Stats lookups and exports share the pool; never let it starve the workers.
	dbConfig.MaxOpenConnections = max(cfg.MaxConnections, cfg.Threads, 1)

	return dbConfig
}

func setupDB(dsn string, dbConfig *dbconn.DBConfig) (*sql.DB, error) {
	db, err := dbconn.New(dsn, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database err:%w", err)
	}

	return db, nil
}

func dsnFromCreds(dbCreds *DBCreds) string {
	cfg := mysql.NewConfig()
	cfg.User = dbCreds.Username
	cfg.Passwd = dbCreds.Password
	cfg.Net = "tcp"
	cfg.Addr = dbCreds.Host
	cfg.DBName = dbCreds.Database

	return cfg.FormatDSN()
}
