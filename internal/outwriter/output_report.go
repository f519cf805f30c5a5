package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// statsRow renders distribution stats as table cells.
func statsRow(s schema.DistributionStats, fmtFloat func(float64) string) []string {
	modes := lo.Map(s.Modes, func(m float64, _ int) string { return strconv.FormatFloat(m, 'f', 0, 64) })
	return []string{
		strconv.Itoa(s.Count),
		fmtFloat(s.Mean), fmtFloat(s.Median), fmtFloat(s.P25), fmtFloat(s.P75),
		strings.Join(modes, " "),
	}
}

var statsHeaders = []string{"Count", "Mean", "Median", "P25", "P75", "Modes"}

func durationWriter(summary schema.DurationSummary, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return resultWriter{
		what: "durations",
		json: func(w io.Writer) error { return writeJSON(w, summary) },
		csv: func(w io.Writer) error {
			header := []string{"days", "surviving", "share"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, b := range summary.Buckets {
					share := 0.0
					if summary.Total > 0 {
						share = float64(b.Surviving) / float64(summary.Total)
					}
					if err := cw.Write([]string{strconv.Itoa(b.Days), strconv.Itoa(b.Surviving), fmtFloat(share)}); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			var rows [][]string
			for _, b := range summary.Buckets {
				share := 0.0
				if summary.Total > 0 {
					share = float64(b.Surviving) / float64(summary.Total)
				}
				rows = append(rows, []string{">= " + strconv.Itoa(b.Days) + "d", strconv.Itoa(b.Surviving), formatPercent(&share, fmtFloat)})
			}
			if err := writeTable(w, []string{"Duration", "Subscribers", "Share"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(w, "%d subscribers, %d still active\n", summary.Total, summary.Censored)
			if err := writeTable(w, statsHeaders, [][]string{statsRow(summary.Completed, fmtFloat)}); err != nil {
				return err
			}
			writeFooter(w, "Durations", cfg, duration)
			return nil
		},
	}
}

// WriteDurationResults writes a duration summary to w in the configured format.
func WriteDurationResults(w io.Writer, summary schema.DurationSummary, cfg *contract.Config, duration time.Duration) error {
	return durationWriter(summary, cfg, duration).write(w, cfg)
}

// PrintDurationResults writes a duration summary to the configured output.
func PrintDurationResults(summary schema.DurationSummary, cfg *contract.Config, duration time.Duration) error {
	return durationWriter(summary, cfg, duration).print(cfg)
}

func conversionWriter(summary schema.ConversionSummary, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return resultWriter{
		what: "conversions",
		json: func(w io.Writer) error { return writeJSON(w, summary) },
		csv: func(w io.Writer) error {
			header := []string{"subscriber_id", "origin", "days"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, p := range summary.Points {
					if err := cw.Write([]string{p.SubscriberID, p.Origin, fmtFloat(p.Days)}); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			var rows [][]string
			for _, origin := range []string{"trial", "lead"} {
				if stats, ok := summary.ByOrigin[origin]; ok {
					rows = append(rows, append([]string{origin}, statsRow(stats, fmtFloat)...))
				}
			}
			rows = append(rows, append([]string{"all"}, statsRow(summary.Stats, fmtFloat)...))
			if err := writeTable(w, append([]string{"Origin"}, statsHeaders...), rows); err != nil {
				return err
			}
			writeFooter(w, "Conversions", cfg, duration)
			return nil
		},
	}
}

// WriteConversionResults writes a conversion summary to w in the configured format.
func WriteConversionResults(w io.Writer, summary schema.ConversionSummary, cfg *contract.Config, duration time.Duration) error {
	return conversionWriter(summary, cfg, duration).write(w, cfg)
}

// PrintConversionResults writes a conversion summary to the configured output.
func PrintConversionResults(summary schema.ConversionSummary, cfg *contract.Config, duration time.Duration) error {
	return conversionWriter(summary, cfg, duration).print(cfg)
}

func volumeWriter(reports []schema.VolumeReport, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	day := func(d *schema.DayVolume) string {
		if d == nil {
			return "-"
		}
		return fmt.Sprintf("%s (%s)", d.Day.Format(time.DateOnly), fmtFloat(d.Value))
	}
	groupHeader := "Month"
	if len(reports) > 0 && reports[0].Location != "" {
		groupHeader = "Location"
	}
	return resultWriter{
		what: "volume",
		json: func(w io.Writer) error { return writeJSON(w, reports) },
		csv: func(w io.Writer) error {
			header := []string{
				strings.ToLower(groupHeader), "event_type", "value", "total", "avg_per_day", "avg_per_active_day",
				"active_days", "best_day", "worst_day", "paid", "events", "paid_percent",
			}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, r := range reports {
					record := []string{
						r.Group(), r.EventType, string(r.Value), fmtFloat(r.Total),
						fmtFloat(r.AvgPerDay), fmtFloat(r.AvgPerActiveDay), strconv.Itoa(r.ActiveDays),
						day(r.BestDay), day(r.WorstDay),
						strconv.Itoa(r.Paid), strconv.Itoa(r.Events), fmtFloat(r.PaidPercent),
					}
					if err := cw.Write(record); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			rows := make([][]string, 0, len(reports))
			var paid, events int
			for _, r := range reports {
				paid += r.Paid
				events += r.Events
				rows = append(rows, []string{
					r.Group(), r.EventType, fmtFloat(r.Total),
					fmtFloat(r.AvgPerDay), fmtFloat(r.AvgPerActiveDay), day(r.BestDay), day(r.WorstDay),
					fmt.Sprintf("%d/%d (%s%%)", r.Paid, r.Events, fmtFloat(r.PaidPercent)),
				})
			}
			headers := []string{groupHeader, "Type", "Total", "Avg/Day", "Avg/Active Day", "Best Day", "Worst Day", "Paid/Events"}
			if err := writeTable(w, headers, rows); err != nil {
				return err
			}
			if events > 0 {
				fmt.Fprintf(w, "%d of %d events paid (%s%%)\n", paid, events, fmtFloat(float64(paid)/float64(events)*100))
			}
			what := "Volume report"
			if len(reports) > 0 && reports[0].Value == schema.RevenueVolume {
				what = "Revenue report"
			}
			writeFooter(w, what, cfg, duration)
			return nil
		},
	}
}

// WriteVolumeResults writes volume reports to w in the configured format.
func WriteVolumeResults(w io.Writer, reports []schema.VolumeReport, cfg *contract.Config, duration time.Duration) error {
	return volumeWriter(reports, cfg, duration).write(w, cfg)
}

// PrintVolumeResults writes volume reports to the configured output.
func PrintVolumeResults(reports []schema.VolumeReport, cfg *contract.Config, duration time.Duration) error {
	return volumeWriter(reports, cfg, duration).print(cfg)
}
