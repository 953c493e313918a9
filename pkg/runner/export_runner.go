package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/tabexport/pkg/boot"
	"github.com/block/tabexport/pkg/export"
	"github.com/block/tabexport/pkg/format"
	"github.com/block/tabexport/pkg/metrics"
	"github.com/block/tabexport/pkg/source"
	"github.com/block/tabexport/pkg/upload"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/siddontang/loggers"
)

var _ Runner = (*ExportRunner)(nil)

type ExportRunner struct {
	db       *sql.DB
	logger   loggers.Advanced
	registry *prometheus.Registry
	metrics  *metrics.Observer
	loader   upload.ConfigLoader

	runID          string
	host           string
	username       string
	password       string
	database       string
	threads        int
	maxConnections int
	commandTimeout time.Duration
	chunkSize      uint64
	outputDir      string
	format         string
	dstType        string
	dstPath        string
	reportFile     string
	metricsFile    string
	startTime      time.Time
}

type ExportRunnerConfig struct {
	RunID          string
	Host           string
	Username       string
	Password       string
	Database       string
	Threads        int
	MaxConnections int
	CommandTimeout time.Duration
	ChunkSize      uint64
	OutputDir      string
	Format         string
	DstType        string
	DstPath        string
	ReportFile     string
	MetricsFile    string
	// ConfigLoader loads the AWS config of an s3 destination. Defaults to
	// config.LoadDefaultConfig.
	ConfigLoader upload.ConfigLoader
}

func NewExportRunner(ecfg *ExportRunnerConfig, logger loggers.Advanced) (*ExportRunner, error) {
	if ecfg.ChunkSize < 1 {
		return nil, export.ErrInvalidChunkSize
	}
	if _, err := format.New(ecfg.Format); err != nil {
		return nil, err
	}
	if ecfg.ReportFile != "" {
		if _, err := reportEncoder(ecfg.ReportFile); err != nil {
			return nil, err
		}
	}
	loader := ecfg.ConfigLoader
	if loader == nil {
		loader = awsConfigLoader
	}

	registry := prometheus.NewRegistry()

	return &ExportRunner{
		logger:         logger,
		registry:       registry,
		metrics:        metrics.NewObserver(registry),
		loader:         loader,
		runID:          ecfg.RunID,
		host:           ecfg.Host,
		username:       ecfg.Username,
		password:       ecfg.Password,
		database:       ecfg.Database,
		threads:        ecfg.Threads,
		maxConnections: ecfg.MaxConnections,
		commandTimeout: ecfg.CommandTimeout,
		chunkSize:      ecfg.ChunkSize,
		outputDir:      ecfg.OutputDir,
		format:         ecfg.Format,
		dstType:        ecfg.DstType,
		dstPath:        ecfg.DstPath,
		reportFile:     ecfg.ReportFile,
		metricsFile:    ecfg.MetricsFile,
	}, nil
}

func awsConfigLoader(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx, optFns...)
}

// Prepare generates a new runID for the export if not present already.
func (er *ExportRunner) Prepare() string {
	if er.runID == "" {
		er.runID = uuid.NewString()
	}

	return er.runID
}

func (er *ExportRunner) Close() error {
	if er.db != nil {
		return er.db.Close()
	}

	return nil
}

// Run exports every base table of the schema. A nil report means the schema
// had no tables. Table failures are in the report; the returned error is
// reserved for failures of the run itself.
func (er *ExportRunner) Run(ctx context.Context) (*export.ExportReport, error) {
	er.Prepare()
	er.startTime = time.Now()
	er.logger.Infof("Starting export: run-id=%s schema=%s concurrency=%d chunk-size=%d format=%s output-dir=%s",
		er.runID, er.database, er.threads, er.chunkSize, er.format, er.outputDir)

	if err := er.boot(ctx, true); err != nil {
		return nil, err
	}
	orchestrator, err := er.newOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	report, err := orchestrator.Run(ctx, er.database, er.outputDir, er.threads)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, nil //nolint:nilnil // nothing to export is not an error
	}
	er.logger.Infof("Finished export run-id=%s in %s", er.runID, time.Since(er.startTime).Round(time.Millisecond))

	return report, er.writeFiles(report)
}

// ExportTable exports a single table of the schema.
func (er *ExportRunner) ExportTable(ctx context.Context, tableName string) (export.ExportOutcome, error) {
	er.Prepare()
	er.startTime = time.Now()
	if err := er.boot(ctx, true); err != nil {
		return export.ExportOutcome{}, err
	}
	src, err := er.newSource()
	if err != nil {
		return export.ExportOutcome{}, err
	}
	exporter, err := er.newExporter(ctx, src, export.MultiObserver{er.logObserver(), er.metrics})
	if err != nil {
		return export.ExportOutcome{}, err
	}

	return exporter.ExportTable(ctx, tableName, er.database, er.outputDir, er.chunkSize), nil
}

// Plan returns the stats of every table in scheduling order without
// exporting anything.
func (er *ExportRunner) Plan(ctx context.Context) ([]export.TableStats, error) {
	er.Prepare()
	if err := er.boot(ctx, false); err != nil {
		return nil, err
	}
	orchestrator, err := er.newOrchestrator(ctx)
	if err != nil {
		return nil, err
	}

	return orchestrator.Plan(ctx, er.database)
}

// boot connects and runs the booter. The output directory is only created
// for runs that write files.
func (er *ExportRunner) boot(ctx context.Context, writes bool) error {
	if err := er.setupDB(); err != nil {
		return err
	}
	eb := boot.NewExportBooter(&boot.ExportBooterConfig{
		DB:        er.db,
		Database:  er.database,
		OutputDir: er.outputDir,
	})
	if err := eb.PreflightChecks(ctx); err != nil {
		return fmt.Errorf("failed preflight checks: %w", err)
	}
	if writes {
		if err := eb.Setup(ctx); err != nil {
			return fmt.Errorf("failed booter setup: %w", err)
		}
	}

	return nil
}

func (er *ExportRunner) newOrchestrator(ctx context.Context) (*export.Orchestrator, error) {
	src, err := er.newSource()
	if err != nil {
		return nil, err
	}
	observer := export.MultiObserver{er.logObserver(), er.metrics}
	exporter, err := er.newExporter(ctx, src, observer)
	if err != nil {
		return nil, err
	}

	return export.NewOrchestrator(&export.OrchestratorConfig{
		Discoverer: src,
		Exporter:   exporter,
		Observer:   observer,
		RunID:      er.runID,
	}), nil
}

func (er *ExportRunner) setupDB() error {
	if er.db != nil {
		return nil
	}
	dsn := dsnFromCreds(&DBCreds{
		Host:     er.host,
		Username: er.username,
		Password: er.password,
		Database: er.database,
	})
	db, err := setupDB(dsn, setupDBConfig(&DBConfig{Threads: er.threads, MaxConnections: er.maxConnections}))
	if err != nil {
		return export.NewConnectionError(err)
	}
	er.db = db

	return nil
}

func (er *ExportRunner) newSource() (*source.MySQL, error) {
	return source.NewMySQL(&source.MySQLConfig{
		DB:             er.db,
		CommandTimeout: er.commandTimeout,
		Logger:         er.logger,
	})
}

func (er *ExportRunner) newExporter(ctx context.Context, src export.Source, observer export.Observer) (*export.TableExporter, error) {
	f, err := format.New(er.format)
	if err != nil {
		return nil, err
	}
	uploader, err := upload.NewUploader(ctx, er.dstType, er.dstPath, er.loader)
	if err != nil {
		return nil, err
	}

	return export.NewTableExporter(&export.ExporterConfig{
		Source:         src,
		Format:         f,
		Uploader:       uploader,
		Observer:       observer,
		ChunkThreshold: er.chunkSize,
		RunTimestamp:   er.startTime,
	})
}

func (er *ExportRunner) logObserver() export.Observer {
	return export.NewLogObserver(er.logger)
}

// writeFiles writes the report and metrics files. Both are written even if
// one of them fails.
func (er *ExportRunner) writeFiles(report *export.ExportReport) error {
	var errs []error
	if er.reportFile != "" {
		if err := WriteReportFile(er.reportFile, report); err != nil {
			errs = append(errs, fmt.Errorf("failed to write report file: %w", err))
		} else {
			er.logger.Infof("Report written to %s", er.reportFile)
		}
	}
	if er.metricsFile != "" {
		if err := metrics.WriteTextfile(er.metricsFile, er.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics file: %w", err))
		}
	}

	return errors.Join(errs...)
}
