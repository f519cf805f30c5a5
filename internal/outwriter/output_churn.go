package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/parquet"
	"github.com/huangsam/subpulse/schema"
)

func churnWriter(scores []schema.RankedChurnScore, cfg *contract.Config, duration time.Duration) resultWriter {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return resultWriter{
		what: "churn",
		json: func(w io.Writer) error { return writeJSON(w, scores) },
		csv: func(w io.Writer) error {
			header := []string{"rank", "subscriber_id", "as_of", "risk", "label", "package_tier", "location"}
			return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
				for _, s := range scores {
					record := []string{
						strconv.Itoa(s.Rank), s.SubscriberID, s.AsOf.Format(contract.DateTimeFormat),
						fmtFloat(s.Risk), s.Label, s.PackageTier, s.Location,
					}
					if err := cw.Write(record); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		},
		table: func(w io.Writer) error {
			width := getMaxLabelWidth(cfg, 50)
			rows := make([][]string, 0, len(scores))
			for _, s := range scores {
				rows = append(rows, []string{
					strconv.Itoa(s.Rank),
					contract.TruncateLabel(s.SubscriberID, width),
					fmtFloat(s.Risk),
					riskLabel(s.Risk, cfg),
					s.PackageTier,
					s.Location,
				})
			}
			if err := writeTable(w, []string{"Rank", "Subscriber", "Risk", "Label", "Package", "Location"}, rows); err != nil {
				return err
			}
			writeFooter(w, fmt.Sprintf("%d churn scores", len(scores)), cfg, duration)
			return nil
		},
		parquet: func(path string) error {
			return parquet.WriteChurnScoresParquet(parquet.ConvertChurnScores(scores), path)
		},
	}
}

// WriteChurnResults writes ranked churn scores to w in the configured format.
func WriteChurnResults(w io.Writer, scores []schema.RankedChurnScore, cfg *contract.Config, duration time.Duration) error {
	return churnWriter(scores, cfg, duration).write(w, cfg)
}

// PrintChurnResults writes ranked churn scores to the configured output.
func PrintChurnResults(scores []schema.RankedChurnScore, cfg *contract.Config, duration time.Duration) error {
	return churnWriter(scores, cfg, duration).print(cfg)
}
