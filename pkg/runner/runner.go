// Package runner wires an export run together: the connection pool, the
// preflight checks, the source, format and uploader of the export, its
// observers and the files written once the run is over.
package runner

import (
	"context"

	"github.com/block/tabexport/pkg/export"
)

type Status int64

const (
	Failed Status = iota
	Errored
	Succeeded
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	case Succeeded:
		return "succeeded"
	}

	return "unknown"
}

// StatusOf returns the terminal status of a run: errored when the run itself
// failed, failed when at least one table failed.
func StatusOf(report *export.ExportReport, err error) Status {
	switch {
	case err != nil:
		return Errored
	case report != nil && report.Failed > 0:
		return Failed
	}

	return Succeeded
}

type Runner interface {
	Prepare() string
	Run(ctx context.Context) (*export.ExportReport, error)
	Close() error
}
