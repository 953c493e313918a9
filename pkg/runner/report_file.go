package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/block/tabexport/pkg/export"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

func reportEncoder(path string) (func(v any) ([]byte, error), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}, nil
	case ".yaml", ".yml":
		return yaml.Marshal, nil
	default:
		return nil, fmt.Errorf("unsupported report file %s, expected a .json, .yaml or .yml extension", path)
	}
}

// WriteReportFile writes the report record to path as JSON or YAML depending
// on the file extension.
func WriteReportFile(path string, report *export.ExportReport) error {
	encode, err := reportEncoder(path)
	if err != nil {
		return err
	}
	data, err := encode(report.Record())
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
