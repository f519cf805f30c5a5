package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/parquet"
)

// ExecuteRunExport exports every recorded forecast run and point to Parquet files
// named <outputFile>.forecast_runs.parquet and <outputFile>.forecast_points.parquet.
func ExecuteRunExport(w io.Writer, store contract.RunStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run tracking is disabled")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no forecast runs found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total forecast runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total forecast points: %d\n", status.TableSizes[forecastPointsTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve forecast runs: %w", err)
	}
	points, err := store.GetAllForecastPoints()
	if err != nil {
		return fmt.Errorf("failed to retrieve forecast points: %w", err)
	}

	runsFile := outputFile + ".forecast_runs.parquet"
	if err := parquet.WriteForecastRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write forecast runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d forecast runs to: %s\n", len(runs), runsFile)

	pointsFile := outputFile + ".forecast_points.parquet"
	if err := parquet.WriteForecastPointsParquet(parquet.ConvertForecastPointRecords(points), pointsFile); err != nil {
		return fmt.Errorf("failed to write forecast points: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d forecast points to: %s\n", len(points), pointsFile)
	return nil
}
