package export

import (
	"fmt"
	"slices"
)

// ExportReport aggregates the outcomes of one run. It is built by folding
// outcomes one at a time; Successful+Failed always equals TotalTables and
// every table name is in exactly one of SucceededNames and FailedNames.
type ExportReport struct {
	RunID          string
	TotalTables    int
	Successful     int
	Failed         int
	SucceededNames map[string]struct{}
	FailedNames    map[string]struct{}
	// Stats is in scheduling order (ascending size), not completion order.
	Stats    []TableStats
	Outcomes []ExportOutcome
}

func NewReport(runID string, stats []TableStats) *ExportReport {
	return &ExportReport{
		RunID:          runID,
		SucceededNames: make(map[string]struct{}),
		FailedNames:    make(map[string]struct{}),
		Stats:          stats,
	}
}

// Fold adds an outcome to the report. An outcome for a table that was already
// folded is rejected.
func (r *ExportReport) Fold(outcome ExportOutcome) error {
	if r.seen(outcome.TableName) {
		return fmt.Errorf("outcome for table '%s' already recorded", outcome.TableName)
	}
	r.TotalTables++
	if outcome.Succeeded {
		r.Successful++
		r.SucceededNames[outcome.TableName] = struct{}{}
	} else {
		r.Failed++
		r.FailedNames[outcome.TableName] = struct{}{}
	}
	r.Outcomes = append(r.Outcomes, outcome)

	return nil
}

func (r *ExportReport) seen(name string) bool {
	if _, ok := r.SucceededNames[name]; ok {
		return true
	}
	_, ok := r.FailedNames[name]

	return ok
}

func (r *ExportReport) Succeeded(name string) bool {
	_, ok := r.SucceededNames[name]

	return ok
}

// Outcome returns the folded outcome of a table.
func (r *ExportReport) Outcome(name string) (ExportOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.TableName == name {
			return o, true
		}
	}

	return ExportOutcome{}, false
}

// TotalRows and TotalSize sum the scheduling stats.
func (r *ExportReport) TotalRows() uint64 {
	var total uint64
	for _, s := range r.Stats {
		total += s.RowCount
	}

	return total
}

func (r *ExportReport) TotalSize() uint64 {
	var total uint64
	for _, s := range r.Stats {
		total += s.SizeBytes
	}

	return total
}

// Record is the presentation shape of a report.
type Record struct {
	RunID               string            `json:"run_id"               yaml:"run_id"`
	TotalTables         int               `json:"total_tables"         yaml:"total_tables"`
	SuccessfulDownloads int               `json:"successful_downloads" yaml:"successful_downloads"`
	FailedDownloads     int               `json:"failed_downloads"     yaml:"failed_downloads"`
	DownloadedTables    []string          `json:"downloaded_tables"    yaml:"downloaded_tables"`
	FailedTables        []string          `json:"failed_tables"        yaml:"failed_tables"`
	TableInfo           []TableInfoRecord `json:"table_info"           yaml:"table_info"`
	Failures            []FailureRecord   `json:"failures,omitempty"   yaml:"failures,omitempty"`
}

type TableInfoRecord struct {
	TableName string `json:"table_name" yaml:"table_name"`
	RowCount  uint64 `json:"row_count"  yaml:"row_count"`
	Size      string `json:"size"       yaml:"size"`
	SizeBytes uint64 `json:"size_bytes" yaml:"size_bytes"`
}

type FailureRecord struct {
	TableName string `json:"table_name" yaml:"table_name"`
	Kind      string `json:"kind"       yaml:"kind"`
	Error     string `json:"error"      yaml:"error"`
}

// Record renders the report. Name lists follow scheduling order; names that
// have no stats entry come last, sorted.
func (r *ExportReport) Record() Record {
	rec := Record{
		RunID:               r.RunID,
		TotalTables:         r.TotalTables,
		SuccessfulDownloads: r.Successful,
		FailedDownloads:     r.Failed,
		DownloadedTables:    []string{},
		FailedTables:        []string{},
		TableInfo:           make([]TableInfoRecord, 0, len(r.Stats)),
	}
	listed := make(map[string]bool, len(r.Stats))
	for _, s := range r.Stats {
		name := s.Descriptor.Name
		listed[name] = true
		rec.TableInfo = append(rec.TableInfo, TableInfoRecord{
			TableName: name,
			RowCount:  s.RowCount,
			Size:      s.HumanSize,
			SizeBytes: s.SizeBytes,
		})
		r.appendName(&rec, name)
	}
	var extra []string
	for _, o := range r.Outcomes {
		if !listed[o.TableName] {
			extra = append(extra, o.TableName)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		r.appendName(&rec, name)
	}

	return rec
}

func (r *ExportReport) appendName(rec *Record, name string) {
	if r.Succeeded(name) {
		rec.DownloadedTables = append(rec.DownloadedTables, name)

		return
	}
	if _, ok := r.FailedNames[name]; !ok {
		return
	}
	rec.FailedTables = append(rec.FailedTables, name)
	if o, ok := r.Outcome(name); ok && o.Err != nil {
		rec.Failures = append(rec.Failures, FailureRecord{
			TableName: name,
			Kind:      KindOf(o.Err).String(),
			Error:     o.Err.Error(),
		})
	}
}
