package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/block/tabexport/pkg/runner"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cli struct {
	Export ExportCmd `cmd:"export" help:"Export every base table of a schema" default:"1"`
	Table  TableCmd  `cmd:"table"  help:"Export a single table"`
	Stats  StatsCmd  `cmd:"stats"  help:"Print the row count and size of every table in export order"`
}

// OutputConfig holds the arguments that decide where and how files are written.
type OutputConfig struct {
	ChunkSize uint64 `name:"chunk-size" help:"Tables with more rows are exported in batches of this many rows" optional:"" default:"10000"`
	OutputDir string `name:"output-dir" help:"Directory the export files are written to" optional:"" default:"downloaded_tables" env:"OUTPUT_DIR"`
	Format    string `name:"format" help:"Export file format" optional:"" default:"csv" enum:"csv,parquet"`
	DstType   string `name:"destination-type" help:"Where finished files are shipped" optional:"" default:"local" enum:"local,s3"`
	DstPath   string `name:"destination-path" help:"s3://bucket/prefix for s3, a directory to copy files to for local" optional:""`
}

// LogConfig holds the logging arguments.
type LogConfig struct {
	LogFile  string `name:"log-file" help:"Also write logs to this file, rotated at 100MB" optional:""`
	LogLevel string `name:"log-level" help:"Log level" optional:"" default:"info" enum:"debug,info,warn,error"`
}

// ExportCmd holds the arguments required for exporting a schema.
type ExportCmd struct {
	RunID       string `name:"run-id" help:"RunID of the export, generated when empty" optional:""`
	ReportFile  string `name:"report-file" help:"Write the run report to this .json or .yaml file" optional:""`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics to this textfile collector file" optional:""`
	OutputConfig
	LogConfig
	runner.DBConfig
	runner.DBCreds
}

// TableCmd holds the arguments required for exporting one table.
type TableCmd struct {
	Name string `arg:"" help:"Name of the table to export"`
	OutputConfig
	LogConfig
	runner.DBConfig
	runner.DBCreds
}

// StatsCmd holds the arguments required for printing table stats.
type StatsCmd struct {
	LogConfig
	runner.DBConfig
	runner.DBCreds
}

func (l *LogConfig) newLogger() (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(l.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	if l.LogFile == "" {
		return logger, io.NopCloser(nil), nil
	}
	rotated := &lumberjack.Logger{
		Filename:   l.LogFile,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotated))

	return logger, rotated, nil
}

func (c *OutputConfig) runnerConfig(creds runner.DBCreds, dbCfg runner.DBConfig) *runner.ExportRunnerConfig {
	return &runner.ExportRunnerConfig{
		Host:           creds.Host,
		Username:       creds.Username,
		Password:       creds.Password,
		Database:       creds.Database,
		Threads:        dbCfg.Threads,
		MaxConnections: dbCfg.MaxConnections,
		CommandTimeout: dbCfg.CommandTimeout,
		ChunkSize:      c.ChunkSize,
		OutputDir:      c.OutputDir,
		Format:         c.Format,
		DstType:        c.DstType,
		DstPath:        c.DstPath,
	}
}

// interruptContext is cancelled on SIGINT or SIGTERM. Exports that already
// started run to completion; the rest are reported as not scheduled.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run invokes the export process. Blocks until completion.
func (e *ExportCmd) Run() error {
	logger, closer, err := e.newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg := e.runnerConfig(e.DBCreds, e.DBConfig)
	cfg.RunID = e.RunID
	cfg.ReportFile = e.ReportFile
	cfg.MetricsFile = e.MetricsFile
	exportRunner, err := runner.NewExportRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("error creating export runner: %w", err)
	}
	defer exportRunner.Close()

	ctx, stop := interruptContext()
	defer stop()
	report, err := exportRunner.Run(ctx)
	if report != nil {
		runner.PrintSummary(os.Stdout, report)
	}
	switch runner.StatusOf(report, err) {
	case runner.Errored:
		return err
	case runner.Failed:
		return fmt.Errorf("%d of %d tables failed to export", report.Failed, report.TotalTables)
	}

	return nil
}

func (t *TableCmd) Run() error {
	logger, closer, err := t.newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	exportRunner, err := runner.NewExportRunner(t.runnerConfig(t.DBCreds, t.DBConfig), logger)
	if err != nil {
		return fmt.Errorf("error creating export runner: %w", err)
	}
	defer exportRunner.Close()

	ctx, stop := interruptContext()
	defer stop()
	outcome, err := exportRunner.ExportTable(ctx, t.Name)
	if err != nil {
		return err
	}
	if !outcome.Succeeded {
		return outcome.Err
	}
	fmt.Printf("Exported %d rows of %s to %s in %s\n",
		outcome.RowsWritten, t.Name, outcome.OutputPath, outcome.Duration.Round(time.Millisecond))

	return nil
}

func (s *StatsCmd) Run() error {
	logger, closer, err := s.newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	exportRunner, err := runner.NewExportRunner(&runner.ExportRunnerConfig{
		Host:           s.Host,
		Username:       s.Username,
		Password:       s.Password,
		Database:       s.Database,
		Threads:        s.Threads,
		MaxConnections: s.MaxConnections,
		CommandTimeout: s.CommandTimeout,
		ChunkSize:      1,
	}, logger)
	if err != nil {
		return fmt.Errorf("error creating export runner: %w", err)
	}
	defer exportRunner.Close()

	ctx, stop := interruptContext()
	defer stop()
	stats, err := exportRunner.Plan(ctx)
	if err != nil {
		return err
	}
	runner.PrintStats(os.Stdout, stats)

	return nil
}

func main() {
	parsedCmd := kong.Parse(&cli,
		kong.Name("tabexport"),
		kong.Description("Export the tables of a MySQL schema to CSV or Parquet files."),
	)
	parsedCmd.FatalIfErrorf(parsedCmd.Run())
}
