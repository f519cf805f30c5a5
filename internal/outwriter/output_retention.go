package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// maxRetentionColumns caps the age columns of the retention table.
const maxRetentionColumns = 12

func retentionWriter(curves []schema.RetentionCurve, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	return resultWriter{
		what: "retention",
		json: func(w io.Writer) error { return writeJSON(w, curves) },
		csv: func(w io.Writer) error {
			header := []string{"cohort", "size", "age", "retained"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, c := range curves {
					for _, p := range c.Points {
						retained := ""
						if p.Retained != nil {
							retained = strconv.FormatFloat(*p.Retained, 'f', -1, 64)
						}
						record := []string{schema.FormatPeriod(c.CohortKey, c.Granularity), fmt.Sprintf(intFmt, c.Size), strconv.Itoa(p.Age), retained}
						if err := cw.Write(record); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			ages := 0
			for _, c := range curves {
				ages = max(ages, len(c.Points))
			}
			ages = min(ages, maxRetentionColumns)

			headers := []string{"Cohort", "Size"}
			for age := range ages {
				headers = append(headers, "+"+strconv.Itoa(age))
			}
			var rows [][]string
			for _, c := range curves {
				row := []string{schema.FormatPeriod(c.CohortKey, c.Granularity), fmt.Sprintf(intFmt, c.Size)}
				for age := range ages {
					cell := ""
					if age < len(c.Points) {
						cell = formatPercent(c.Points[age].Retained, fmtFloat)
					}
					row = append(row, cell)
				}
				rows = append(rows, row)
			}
			if err := writeTable(w, headers, rows); err != nil {
				return err
			}
			writeFooter(w, fmt.Sprintf("%d retention curves", len(curves)), cfg, duration)
			return nil
		},
	}
}

// WriteRetentionResults writes retention curves to w in the configured format.
func WriteRetentionResults(w io.Writer, curves []schema.RetentionCurve, cfg *contract.Config, duration time.Duration) error {
	return retentionWriter(curves, cfg, duration).write(w, cfg)
}

// PrintRetentionResults writes retention curves to the configured output.
func PrintRetentionResults(curves []schema.RetentionCurve, cfg *contract.Config, duration time.Duration) error {
	return retentionWriter(curves, cfg, duration).print(cfg)
}
