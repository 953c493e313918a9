package export_test

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/block/tabexport/pkg/export"
)

type fakeTable struct {
	columns []export.Column
	rows    [][]any
	size    uint64
	// statsFailures makes the first n Stats calls fail.
	statsFailures int
	fetchErr      error
	panicOnFetch  bool
}

// fakeSource serves tables from memory and records the pages it was asked for.
type fakeSource struct {
	mu      sync.Mutex
	tables  map[string]*fakeTable
	listErr error

	fetchAllCalls int
	pageOffsets   map[string][]uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tables:      make(map[string]*fakeTable),
		pageOffsets: make(map[string][]uint64),
	}
}

func idNameColumns() []export.Column {
	return []export.Column{{Name: "id", DataType: "int"}, {Name: "name", DataType: "varchar(32)"}}
}

func (s *fakeSource) addTable(name string, rowCount int, size uint64) *fakeTable {
	t := &fakeTable{columns: idNameColumns(), size: size}
	for i := range rowCount {
		t.rows = append(t.rows, []any{int64(i + 1), fmt.Sprintf("%s-%d", name, i+1)})
	}
	s.tables[name] = t

	return t
}

func (s *fakeSource) table(name string) (*fakeTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]

	return t, ok
}

func (s *fakeSource) ListTables(_ context.Context, schema string) ([]export.TableDescriptor, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	tables := make([]export.TableDescriptor, len(names))
	for i, name := range names {
		tables[i] = export.TableDescriptor{Name: name, Schema: schema}
	}

	return tables, nil
}

func (s *fakeSource) Columns(_ context.Context, table export.TableDescriptor) ([]export.Column, error) {
	t, ok := s.table(table.Name)
	if !ok {
		return nil, nil
	}

	return t.columns, nil
}

func (s *fakeSource) Stats(_ context.Context, table export.TableDescriptor) (export.TableStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table.Name]
	if !ok {
		return export.UnknownStats(table), fmt.Errorf("%w: %s", export.ErrTableNotFound, table)
	}
	if t.statsFailures > 0 {
		t.statsFailures--

		return export.UnknownStats(table), fmt.Errorf("stats of %s unavailable", table)
	}

	return export.NewTableStats(table, uint64(len(t.rows)), t.size), nil
}

func (s *fakeSource) FetchAll(_ context.Context, table export.TableDescriptor) ([][]any, error) {
	s.mu.Lock()
	s.fetchAllCalls++
	s.mu.Unlock()
	t, ok := s.table(table.Name)
	if !ok {
		return nil, export.ErrTableNotFound
	}
	if t.panicOnFetch {
		panic("fetch exploded")
	}
	if t.fetchErr != nil {
		return nil, t.fetchErr
	}

	return slices.Clone(t.rows), nil
}

func (s *fakeSource) FetchPage(_ context.Context, table export.TableDescriptor, limit, offset uint64) ([][]any, error) {
	s.mu.Lock()
	s.pageOffsets[table.Name] = append(s.pageOffsets[table.Name], offset)
	s.mu.Unlock()
	t, ok := s.table(table.Name)
	if !ok {
		return nil, export.ErrTableNotFound
	}
	if t.fetchErr != nil && offset > 0 {
		return nil, t.fetchErr
	}
	if offset >= uint64(len(t.rows)) {
		return nil, nil
	}
	end := min(offset+limit, uint64(len(t.rows)))

	return slices.Clone(t.rows[offset:end]), nil
}

func (s *fakeSource) offsets(name string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.pageOffsets[name])
}

// recordingFormat counts the files a format created and re-opened.
type recordingFormat struct {
	export.Format

	mu      sync.Mutex
	creates int
	appends int
}

func (f *recordingFormat) Create(path string, columns []export.Column) (export.Writer, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()

	return f.Format.Create(path, columns)
}

func (f *recordingFormat) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.creates, f.appends
}

// recordingAppender is a recordingFormat whose inner format can append.
type recordingAppender struct {
	*recordingFormat
}

func (f recordingAppender) Append(path string, columns []export.Column) (export.Writer, error) {
	f.mu.Lock()
	f.appends++
	f.mu.Unlock()

	return f.Format.(export.Appender).Append(path, columns)
}

type recordingUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, localPath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, localPath)

	return u.err
}
