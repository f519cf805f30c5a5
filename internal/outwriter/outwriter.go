// Package outwriter renders subpulse results as tables, CSV, JSON or Parquet.
package outwriter

import (
	"fmt"
	"io"
	"strings"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// resultWriter bundles the renderers of one result type.
type resultWriter struct {
	what    string
	json    func(io.Writer) error
	csv     func(io.Writer) error
	table   func(io.Writer) error
	parquet func(path string) error // nil when the type has no Parquet layout
}

// write dispatches on the configured output format.
func (rw resultWriter) write(w io.Writer, cfg *contract.Config) error {
	var err error
	switch cfg.Output {
	case schema.JSONOut:
		err = rw.json(w)
	case schema.CSVOut:
		err = rw.csv(w)
	case schema.ParquetOut:
		return unsupportedOutput(rw.what, cfg.Output)
	default:
		err = rw.table(w)
	}
	if err != nil {
		return fmt.Errorf("error writing %s %s output: %w", rw.what, cfg.Output, err)
	}
	return nil
}

// print writes to the configured output file, or stdout when none is set.
func (rw resultWriter) print(cfg *contract.Config) error {
	if cfg.Output == schema.ParquetOut {
		if rw.parquet == nil {
			return unsupportedOutput(rw.what, cfg.Output)
		}
		if err := rw.parquet(cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing %s parquet output: %w", rw.what, err)
		}
		return nil
	}
	label := strings.ToUpper(string(cfg.Output))
	if cfg.Output == schema.TextOut || cfg.Output == "" {
		label = "table"
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return rw.write(w, cfg)
	}, fmt.Sprintf("Wrote %s %s", rw.what, label))
}
