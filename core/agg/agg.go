// Package agg aggregates canonical subscription events into time-indexed metric series.
package agg

import (
	"fmt"
	"time"

	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Options controls the shape of the aggregated series.
type Options struct {
	Granularity schema.Granularity
	Dimensions  []schema.Dimension  // empty aggregates everything under "total"
	Metrics     []schema.MetricName // empty means every metric
	Range       schema.DateRange    // zero means the observed range of the events
}

// bucketGrid accumulates one metric across dimension keys on a fixed period grid.
type bucketGrid struct {
	cells map[string][]decimal.Decimal
	size  int
}

func newBucketGrid(size int) *bucketGrid {
	return &bucketGrid{cells: map[string][]decimal.Decimal{}, size: size}
}

func (bg *bucketGrid) row(key string) []decimal.Decimal {
	r, ok := bg.cells[key]
	if !ok {
		r = make([]decimal.Decimal, bg.size+1)
		bg.cells[key] = r
	}
	return r
}

// Aggregate builds one series per metric and dimension key. Series are sorted by
// metric then key, have one point for every period of the grid, and never skip periods.
func Aggregate(events []schema.SubscriptionEvent, opts Options) ([]schema.MetricSeries, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}

	r := opts.Range
	if r.IsZero() {
		if len(events) == 0 {
			return nil, nil
		}
		r = ObservedRange(events, opts.Granularity)
	}
	grid := schema.PeriodGrid(r, opts.Granularity)
	if len(grid) == 0 {
		return nil, nil
	}
	gridStart := grid[0]
	gridEnd := schema.NextPeriod(grid[len(grid)-1], opts.Granularity)

	keyOf := func(e schema.SubscriptionEvent) string {
		values := make(map[schema.Dimension]string, len(opts.Dimensions))
		for _, d := range opts.Dimensions {
			values[d] = e.Attribute(d)
		}
		return schema.DimensionKey(values)
	}

	grids := make(map[schema.MetricName]*bucketGrid, len(opts.Metrics))
	for _, m := range opts.Metrics {
		grids[m] = newBucketGrid(len(grid))
	}

	// Flow metrics: one pass over events inside the grid.
	for _, e := range events {
		p := schema.TruncatePeriod(e.Timestamp, opts.Granularity)
		if p.Before(gridStart) || !p.Before(gridEnd) {
			continue
		}
		idx := schema.PeriodsBetween(gridStart, p, opts.Granularity)
		key := keyOf(e)
		if bg, ok := grids[e.Type.CountMetric()]; ok {
			row := bg.row(key)
			row[idx] = row[idx].Add(decimal.NewFromInt(1))
		}
		if bg, ok := grids[schema.RevenueMetric]; ok {
			row := bg.row(key)
			row[idx] = row[idx].Add(e.Amount)
		}
	}

	// Stock metric: difference arrays over the segments, then one prefix sum.
	if bg, ok := grids[schema.ActiveMetric]; ok {
		_, segments := Activity(events, opts.Granularity)
		for _, seg := range segments {
			start := clampIndex(gridStart, seg.Start, len(grid), opts.Granularity)
			end := len(grid)
			if !seg.End.IsZero() {
				end = clampIndex(gridStart, seg.End, len(grid), opts.Granularity)
			}
			if start >= end {
				continue
			}
			row := bg.row(keyOf(seg.Event))
			row[start] = row[start].Add(decimal.NewFromInt(1))
			row[end] = row[end].Sub(decimal.NewFromInt(1))
		}
		for _, row := range bg.cells {
			for i := 1; i < len(row); i++ {
				row[i] = row[i].Add(row[i-1])
			}
		}
	}

	var series []schema.MetricSeries
	for _, m := range opts.Metrics {
		for key, row := range grids[m].cells {
			points := make([]schema.SeriesPoint, len(grid))
			for i, p := range grid {
				points[i] = schema.SeriesPoint{Period: p, Value: row[i].InexactFloat64()}
			}
			series = append(series, schema.MetricSeries{
				Metric:       m,
				DimensionKey: key,
				Granularity:  opts.Granularity,
				Kind:         schema.KindOf(m),
				Points:       points,
			})
		}
	}
	schema.SortSeries(series)
	return series, nil
}

// ObservedRange covers every period from the first to the last event.
func ObservedRange(events []schema.SubscriptionEvent, g schema.Granularity) schema.DateRange {
	if len(events) == 0 {
		return schema.DateRange{}
	}
	first := lo.MinBy(events, func(a, b schema.SubscriptionEvent) bool { return a.Timestamp.Before(b.Timestamp) })
	last := lo.MaxBy(events, func(a, b schema.SubscriptionEvent) bool { return a.Timestamp.After(b.Timestamp) })
	return schema.PeriodRange(first.Timestamp, last.Timestamp, g)
}

// clampIndex maps a period start onto the grid, clamped to [0, size].
func clampIndex(gridStart, p time.Time, size int, g schema.Granularity) int {
	idx := schema.PeriodsBetween(gridStart, p, g)
	return max(0, min(idx, size))
}

func validateOptions(opts *Options) error {
	if opts.Granularity == "" {
		opts.Granularity = schema.MonthGranularity
	}
	if _, ok := schema.ValidGranularities[opts.Granularity]; !ok {
		return fmt.Errorf("invalid granularity %q", opts.Granularity)
	}
	for _, d := range opts.Dimensions {
		if _, ok := schema.ValidDimensions[d]; !ok {
			return fmt.Errorf("invalid dimension %q", d)
		}
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = schema.AllMetrics
	}
	for _, m := range opts.Metrics {
		if _, ok := schema.ValidMetrics[m]; !ok {
			return fmt.Errorf("invalid metric %q", m)
		}
	}
	opts.Metrics = lo.Uniq(opts.Metrics)
	opts.Dimensions = lo.Uniq(opts.Dimensions)
	if !opts.Range.IsZero() && !opts.Range.Start.Before(opts.Range.End) {
		return fmt.Errorf("invalid range %s", opts.Range)
	}
	return nil
}

// Find returns the series matching a metric and dimension key.
func Find(series []schema.MetricSeries, metric schema.MetricName, key string) (schema.MetricSeries, bool) {
	return lo.Find(series, func(s schema.MetricSeries) bool {
		return s.Metric == metric && s.DimensionKey == key
	})
}
