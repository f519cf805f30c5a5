package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/parquet"
	"github.com/huangsam/subpulse/schema"
)

func seriesWriter(series []schema.MetricSeries, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return resultWriter{
		what: "series",
		json: func(w io.Writer) error { return writeJSON(w, series) },
		csv: func(w io.Writer) error {
			header := []string{"metric", "dimension_key", "granularity", "period", "value"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, s := range series {
					for _, p := range s.Points {
						record := []string{string(s.Metric), s.DimensionKey, string(s.Granularity), schema.FormatPeriod(p.Period, s.Granularity), fmtFloat(p.Value)}
						if err := cw.Write(record); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			width := getMaxLabelWidth(cfg, 45)
			var rows [][]string
			for _, s := range series {
				for _, p := range s.Points {
					rows = append(rows, []string{
						string(s.Metric),
						contract.TruncateLabel(s.DimensionKey, width),
						schema.FormatPeriod(p.Period, s.Granularity),
						fmtFloat(p.Value),
					})
				}
			}
			if err := writeTable(w, []string{"Metric", "Dimension", "Period", "Value"}, rows); err != nil {
				return err
			}
			writeFooter(w, fmt.Sprintf("%d series", len(series)), cfg, duration)
			return nil
		},
		parquet: func(path string) error {
			return parquet.WriteSeriesParquet(parquet.ConvertSeries(series), path)
		},
	}
}

// WriteSeriesResults writes metric series to w in the configured format.
func WriteSeriesResults(w io.Writer, series []schema.MetricSeries, cfg *contract.Config, duration time.Duration) error {
	return seriesWriter(series, cfg, duration).write(w, cfg)
}

// PrintSeriesResults writes metric series to the configured output.
func PrintSeriesResults(series []schema.MetricSeries, cfg *contract.Config, duration time.Duration) error {
	return seriesWriter(series, cfg, duration).print(cfg)
}
