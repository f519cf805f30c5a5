package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/parquet"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

var forecastHeader = []string{"metric", "dimension_key", "period", "point", "lower", "upper", "model", "error"}

func forecastWriter(batch []schema.BatchForecast, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return resultWriter{
		what: "forecast",
		json: func(w io.Writer) error { return writeJSON(w, batch) },
		csv: func(w io.Writer) error {
			return writeCSVWithHeader(w, forecastHeader, func(cw *csv.Writer) error {
				for _, b := range batch {
					if b.Result == nil {
						if err := cw.Write([]string{string(b.Metric), b.DimensionKey, "", "", "", "", "", b.Err}); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
						continue
					}
					for _, p := range b.Result.Points {
						record := []string{
							string(b.Metric), b.DimensionKey,
							schema.FormatPeriod(p.Period, b.Result.Granularity),
							fmtFloat(p.Point), csvBound(p.Lower, fmtFloat), csvBound(p.Upper, fmtFloat),
							p.Model, "",
						}
						if err := cw.Write(record); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			width := getMaxLabelWidth(cfg, 75)
			var rows [][]string
			failed := 0
			for _, b := range batch {
				key := contract.TruncateLabel(b.DimensionKey, width)
				if b.Result == nil {
					failed++
					rows = append(rows, []string{string(b.Metric), key, "-", "-", "-", "-", contract.TruncateLabel(b.Err, width)})
					continue
				}
				for _, p := range b.Result.Points {
					rows = append(rows, []string{
						string(b.Metric), key,
						schema.FormatPeriod(p.Period, b.Result.Granularity),
						fmtFloat(p.Point), formatBound(p.Lower, fmtFloat), formatBound(p.Upper, fmtFloat),
						p.Model,
					})
				}
			}
			if err := writeTable(w, []string{"Metric", "Dimension", "Period", "Point", "Lower", "Upper", "Model"}, rows); err != nil {
				return err
			}
			writeFooter(w, fmt.Sprintf("%d forecasts (%d failed)", len(batch), failed), cfg, duration)
			return nil
		},
		parquet: func(path string) error {
			results := lo.FilterMap(batch, func(b schema.BatchForecast, _ int) (schema.ForecastResult, bool) {
				if b.Result == nil {
					return schema.ForecastResult{}, false
				}
				return *b.Result, true
			})
			return parquet.WriteForecastPointsParquet(parquet.ConvertForecastResults(results), path)
		},
	}
}

func csvBound(v *float64, fmtFloat func(float64) string) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}

// WriteForecastResults writes batch forecasts to w in the configured format.
func WriteForecastResults(w io.Writer, batch []schema.BatchForecast, cfg *contract.Config, duration time.Duration) error {
	return forecastWriter(batch, cfg, duration).write(w, cfg)
}

// PrintForecastResults writes batch forecasts to the configured output.
func PrintForecastResults(batch []schema.BatchForecast, cfg *contract.Config, duration time.Duration) error {
	return forecastWriter(batch, cfg, duration).print(cfg)
}

func revenueWriter(breakdown schema.RevenueBreakdown, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	types := lo.Filter(schema.AllEventTypes, func(t schema.EventType, _ int) bool {
		_, ok := breakdown.ByType[t]
		return ok
	})

	// pointAt finds the forecast of type t for a period.
	pointAt := func(t schema.EventType, period time.Time) (schema.ForecastPoint, bool) {
		return lo.Find(breakdown.ByType[t].Points, func(p schema.ForecastPoint) bool { return p.Period.Equal(period) })
	}
	granularity := schema.MonthGranularity
	if len(types) > 0 {
		granularity = breakdown.ByType[types[0]].Granularity
	}

	return resultWriter{
		what: "revenue",
		json: func(w io.Writer) error { return writeJSON(w, breakdown) },
		csv: func(w io.Writer) error {
			header := []string{"period", "type", "point", "lower", "upper"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, total := range breakdown.Total {
					period := schema.FormatPeriod(total.Period, granularity)
					for _, t := range types {
						p, ok := pointAt(t, total.Period)
						if !ok {
							continue
						}
						if err := cw.Write([]string{period, string(t), fmtFloat(p.Point), csvBound(p.Lower, fmtFloat), csvBound(p.Upper, fmtFloat)}); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
					}
					if err := cw.Write([]string{period, "total", fmtFloat(total.Point), csvBound(total.Lower, fmtFloat), csvBound(total.Upper, fmtFloat)}); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			headers := []string{"Period"}
			for _, t := range types {
				headers = append(headers, strings.ToUpper(string(t)[:1])+string(t)[1:])
			}
			headers = append(headers, "Total", "Lower", "Upper")

			var rows [][]string
			for _, total := range breakdown.Total {
				row := []string{schema.FormatPeriod(total.Period, granularity)}
				for _, t := range types {
					cell := "-"
					if p, ok := pointAt(t, total.Period); ok {
						cell = fmtFloat(p.Point)
					}
					row = append(row, cell)
				}
				row = append(row, fmtFloat(total.Point), formatBound(total.Lower, fmtFloat), formatBound(total.Upper, fmtFloat))
				rows = append(rows, row)
			}
			if err := writeTable(w, headers, rows); err != nil {
				return err
			}
			writeFooter(w, "Revenue forecast", cfg, duration)
			return nil
		},
		parquet: func(path string) error {
			results := make([]schema.ForecastResult, 0, len(types)+1)
			for _, t := range types {
				results = append(results, breakdown.ByType[t])
			}
			results = append(results, schema.ForecastResult{Metric: schema.RevenueMetric, DimensionKey: schema.TotalDimensionKey, Points: breakdown.Total})
			return parquet.WriteForecastPointsParquet(parquet.ConvertForecastResults(results), path)
		},
	}
}

// WriteRevenueResults writes a revenue breakdown to w in the configured format.
func WriteRevenueResults(w io.Writer, breakdown schema.RevenueBreakdown, cfg *contract.Config, duration time.Duration) error {
	return revenueWriter(breakdown, cfg, duration).write(w, cfg)
}

// PrintRevenueResults writes a revenue breakdown to the configured output.
func PrintRevenueResults(breakdown schema.RevenueBreakdown, cfg *contract.Config, duration time.Duration) error {
	return revenueWriter(breakdown, cfg, duration).print(cfg)
}

func growthWriter(summary schema.GrowthSummary, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	granularity := cfg.Granularity
	if granularity == "" {
		granularity = schema.MonthGranularity
	}
	churnAt := func(period time.Time) float64 {
		p, _ := lo.Find(summary.Churn, func(p schema.ForecastPoint) bool { return p.Period.Equal(period) })
		return p.Point
	}
	return resultWriter{
		what: "growth",
		json: func(w io.Writer) error { return writeJSON(w, summary) },
		csv: func(w io.Writer) error {
			header := []string{"period", "inflow", "churn", "net"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, in := range summary.Inflow {
					churn := churnAt(in.Period)
					record := []string{schema.FormatPeriod(in.Period, granularity), fmtFloat(in.Point), fmtFloat(churn), fmtFloat(in.Point - churn)}
					if err := cw.Write(record); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			rows := make([][]string, 0, len(summary.Inflow))
			for _, in := range summary.Inflow {
				churn := churnAt(in.Period)
				rows = append(rows, []string{schema.FormatPeriod(in.Period, granularity), fmtFloat(in.Point), fmtFloat(churn), fmtFloat(in.Point - churn)})
			}
			if err := writeTable(w, []string{"Period", "Inflow", "Churn", "Net"}, rows); err != nil {
				return err
			}
			peak := "-"
			if !summary.PeakChurnPeriod.IsZero() {
				peak = fmt.Sprintf("%s in %s", fmtFloat(summary.PeakChurn), schema.FormatPeriod(summary.PeakChurnPeriod, granularity))
			}
			fmt.Fprintf(w, "Predicted churn %s (avg %s, peak %s), net growth %s\n",
				fmtFloat(summary.TotalChurn), fmtFloat(summary.AvgChurn), peak, fmtFloat(summary.NetGrowth))
			writeFooter(w, "Growth forecast", cfg, duration)
			return nil
		},
	}
}

// WriteGrowthResults writes a growth summary to w in the configured format.
func WriteGrowthResults(w io.Writer, summary schema.GrowthSummary, cfg *contract.Config, duration time.Duration) error {
	return growthWriter(summary, cfg, duration).write(w, cfg)
}

// PrintGrowthResults writes a growth summary to the configured output.
func PrintGrowthResults(summary schema.GrowthSummary, cfg *contract.Config, duration time.Duration) error {
	return growthWriter(summary, cfg, duration).print(cfg)
}
