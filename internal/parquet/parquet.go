// Package parquet exports subpulse results and forecast runs to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/huangsam/subpulse/schema"
	"github.com/parquet-go/parquet-go"
)

// ForecastRun maps to the subpulse_forecast_runs table.
type ForecastRun struct {
	RunID          int64      `parquet:"run_id,snappy"`
	StartTime      time.Time  `parquet:"start_time,snappy"`
	EndTime        *time.Time `parquet:"end_time,optional,snappy"`
	RunDurationMs  *int32     `parquet:"run_duration_ms,optional,snappy"`
	TotalForecasts int32      `parquet:"total_forecasts,snappy"`

	// ConfigParams contains the JSON-encoded model configuration (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// ForecastPoint maps to the subpulse_forecast_points table and to forecast output.
// RunID is zero for forecasts that were not recorded.
type ForecastPoint struct {
	RunID        int64     `parquet:"run_id,snappy"`
	Metric       string    `parquet:"metric,dict,snappy"`
	DimensionKey string    `parquet:"dimension_key,dict,snappy"`
	Period       time.Time `parquet:"period,snappy"`
	Point        float64   `parquet:"point,snappy"`
	Lower        *float64  `parquet:"lower,optional,snappy"`
	Upper        *float64  `parquet:"upper,optional,snappy"`
	Model        string    `parquet:"model,dict,snappy"`
}

// SeriesPoint is one period of a metric series.
type SeriesPoint struct {
	Metric       string    `parquet:"metric,dict,snappy"`
	DimensionKey string    `parquet:"dimension_key,dict,snappy"`
	Granularity  string    `parquet:"granularity,dict,snappy"`
	Period       time.Time `parquet:"period,snappy"`
	Value        float64   `parquet:"value,snappy"`
}

// ChurnScore is one ranked churn risk.
type ChurnScore struct {
	Rank         int32     `parquet:"rank,snappy"`
	SubscriberID string    `parquet:"subscriber_id,snappy"`
	AsOf         time.Time `parquet:"as_of,snappy"`
	Risk         float64   `parquet:"risk,snappy"`
	Label        string    `parquet:"label,dict,snappy"`
	PackageTier  string    `parquet:"package_tier,dict,snappy"`
	Location     string    `parquet:"location,dict,snappy"`
}

// writeParquet writes rows to outputPath with a schema inferred from T's struct tags.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteForecastRunsParquet writes forecast runs to a Parquet file.
func WriteForecastRunsParquet(data []ForecastRun, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteForecastPointsParquet writes forecast points to a Parquet file.
func WriteForecastPointsParquet(data []ForecastPoint, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteSeriesParquet writes metric series points to a Parquet file.
func WriteSeriesParquet(data []SeriesPoint, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteChurnScoresParquet writes ranked churn scores to a Parquet file.
func WriteChurnScoresParquet(data []ChurnScore, outputPath string) error {
	return writeParquet(data, outputPath)
}

// ConvertRunRecords converts schema.RunRecord to ForecastRun for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []ForecastRun {
	result := make([]ForecastRun, len(records))
	for i, r := range records {
		result[i] = ForecastRun{
			RunID:          r.RunID,
			StartTime:      r.StartTime,
			EndTime:        r.EndTime,
			RunDurationMs:  r.RunDurationMs,
			TotalForecasts: r.TotalForecasts,
			ConfigParams:   r.ConfigParams,
		}
	}
	return result
}

// ConvertForecastPointRecords converts stored forecast points for Parquet export.
func ConvertForecastPointRecords(records []schema.ForecastPointRecord) []ForecastPoint {
	result := make([]ForecastPoint, len(records))
	for i, r := range records {
		result[i] = ForecastPoint{
			RunID:        r.RunID,
			Metric:       r.Metric,
			DimensionKey: r.DimensionKey,
			Period:       r.Period,
			Point:        r.Point,
			Lower:        r.Lower,
			Upper:        r.Upper,
			Model:        r.Model,
		}
	}
	return result
}

// ConvertForecastResults flattens forecast results into rows.
func ConvertForecastResults(results []schema.ForecastResult) []ForecastPoint {
	var rows []ForecastPoint
	for _, res := range results {
		for _, p := range res.Points {
			rows = append(rows, ForecastPoint{
				Metric:       string(res.Metric),
				DimensionKey: res.DimensionKey,
				Period:       p.Period,
				Point:        p.Point,
				Lower:        p.Lower,
				Upper:        p.Upper,
				Model:        p.Model,
			})
		}
	}
	return rows
}

// ConvertSeries flattens metric series into rows.
func ConvertSeries(series []schema.MetricSeries) []SeriesPoint {
	var rows []SeriesPoint
	for _, s := range series {
		for _, p := range s.Points {
			rows = append(rows, SeriesPoint{
				Metric:       string(s.Metric),
				DimensionKey: s.DimensionKey,
				Granularity:  string(s.Granularity),
				Period:       p.Period,
				Value:        p.Value,
			})
		}
	}
	return rows
}

// ConvertChurnScores converts ranked scores for Parquet export.
func ConvertChurnScores(scores []schema.RankedChurnScore) []ChurnScore {
	result := make([]ChurnScore, len(scores))
	for i, s := range scores {
		result[i] = ChurnScore{
			Rank:         int32(s.Rank),
			SubscriberID: s.SubscriberID,
			AsOf:         s.AsOf,
			Risk:         s.Risk,
			Label:        s.Label,
			PackageTier:  s.PackageTier,
			Location:     s.Location,
		}
	}
	return result
}
