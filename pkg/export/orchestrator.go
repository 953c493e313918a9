package export

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Discoverer lists the base tables of a schema.
type Discoverer interface {
	ListTables(ctx context.Context, schema string) ([]TableDescriptor, error)
}

// Exporter is what the Orchestrator schedules. *TableExporter implements it.
// Export reports TableStarted and TableFinished itself; the Orchestrator only
// reports the outcomes of tasks that never returned one.
type Exporter interface {
	Stats(ctx context.Context, table TableDescriptor) (TableStats, error)
	OutputPath(outputDir, table string) string
	Export(ctx context.Context, task ExportTask) ExportOutcome
}

var errInterrupted = errors.New("run interrupted before export started")

// Orchestrator discovers the tables of a schema and exports them with at most
// maxConcurrency table exports in flight.
type Orchestrator struct {
	discoverer Discoverer
	exporter   Exporter
	observer   Observer
	runID      string
}

type OrchestratorConfig struct {
	Discoverer Discoverer
	Exporter   Exporter
	Observer   Observer
	RunID      string
}

func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		discoverer: cfg.Discoverer,
		exporter:   cfg.Exporter,
		observer:   cfg.Observer,
		runID:      cfg.RunID,
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}

	return o
}

// Run exports every base table of schema into outputDir. It returns a nil
// report when the schema has no tables. Table failures never fail the run;
// they are recorded in the report.
//
// Cancelling ctx stops admission of new tables (they are reported as
// SchedulingError) but lets the exports already running finish.
func (o *Orchestrator) Run(ctx context.Context, schema, outputDir string, maxConcurrency int) (*ExportReport, error) {
	stats, err := o.Plan(ctx, schema)
	if err != nil || len(stats) == 0 {
		return nil, err
	}
	maxConcurrency = max(maxConcurrency, 1)
	o.observer.RunStarted(o.runID, stats, maxConcurrency)

	outcomes := o.dispatch(ctx, stats, outputDir, maxConcurrency)

	report := NewReport(o.runID, stats)
	for i, outcome := range outcomes {
		if outcome.TableName == "" {
			name := stats[i].Descriptor.Name
			outcome = Failed(name, schedulingErr(name, errors.New("export task produced no outcome")), 0)
			o.observer.TableFinished(outcome)
		}
		if err := report.Fold(outcome); err != nil {
			return report, schedulingErr(outcome.TableName, err)
		}
	}
	o.observer.RunFinished(report)

	return report, nil
}

// Plan discovers the tables of schema and returns their stats in scheduling
// order: ascending size, ties broken by name.
func (o *Orchestrator) Plan(ctx context.Context, schema string) ([]TableStats, error) {
	tables, err := o.discoverer.ListTables(ctx, schema)
	if err != nil {
		return nil, queryErr("", "list tables", fmt.Errorf("schema '%s': %w", schema, err))
	}
	o.observer.TablesDiscovered(schema, tables)
	if len(tables) == 0 {
		return nil, nil
	}

	stats := o.collectStats(ctx, tables)
	slices.SortStableFunc(stats, func(a, b TableStats) int {
		return cmp.Or(cmp.Compare(a.SizeBytes, b.SizeBytes), cmp.Compare(a.Descriptor.Name, b.Descriptor.Name))
	})

	return stats, nil
}

// collectStats looks up the stats of every table concurrently. The connection
// pool is the only bound on this phase.
func (o *Orchestrator) collectStats(ctx context.Context, tables []TableDescriptor) []TableStats {
	stats := make([]TableStats, len(tables))
	var g errgroup.Group
	for i, table := range tables {
		g.Go(func() error {
			s, err := o.exporter.Stats(ctx, table)
			if err != nil {
				o.observer.StatsUnavailable(table, err)
				s = UnknownStats(table)
			}
			stats[i] = s

			return nil
		})
	}
	_ = g.Wait()

	return stats
}

// dispatch admits tasks in stats order. The returned slice is index aligned
// with stats and each slot is written by exactly one goroutine.
func (o *Orchestrator) dispatch(ctx context.Context, stats []TableStats, outputDir string, maxConcurrency int) []ExportOutcome {
	outcomes := make([]ExportOutcome, len(stats))
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	// Admitted exports are not cancelled by an interrupt.
	taskCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, s := range stats {
		name := s.Descriptor.Name
		if err := acquire(ctx, sem); err != nil {
			outcomes[i] = Failed(name, schedulingErr(name, fmt.Errorf("%w: %w", errInterrupted, err)), 0)
			o.observer.TableFinished(outcomes[i])

			continue
		}
		task := ExportTask{Stats: s, OutputPath: o.exporter.OutputPath(outputDir, name)}
		g.Go(func() error {
			defer sem.Release(1)
			outcomes[i] = o.runTask(taskCtx, task)

			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return sem.Acquire(ctx, 1)
}

// runTask turns a panic escaping the exporter, or an outcome labelled with
// another table, into a SchedulingError outcome attributed to the task's
// table.
func (o *Orchestrator) runTask(ctx context.Context, task ExportTask) (outcome ExportOutcome) {
	start := time.Now()
	name := task.Stats.Descriptor.Name
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(name, schedulingErr(name, fmt.Errorf("export task panicked: %v", r)), time.Since(start))
			o.observer.TableFinished(outcome)
		}
	}()
	outcome = o.exporter.Export(ctx, task)
	if outcome.TableName != name {
		// The exporter already reported this outcome to its observer.
		err := fmt.Errorf("export task for '%s' reported table '%s'", name, outcome.TableName)
		outcome = Failed(name, schedulingErr(name, err), time.Since(start))
	}

	return outcome
}
