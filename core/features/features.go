// Package features turns metric series into feature rows for regression models.
package features

import (
	"fmt"
	"sort"
	"time"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// Options controls which features are built.
type Options struct {
	Lags             []int
	Windows          []int
	Calendar         contract.HolidayCalendar // optional
	Encoding         schema.EncodingMode
	AllowMissingLags bool

	// Vocabulary lists the known values of each dimension attribute. Dimensions
	// without a vocabulary produce no encoding columns.
	Vocabulary map[schema.Dimension][]string
}

// DefaultLags returns the lag set used for a granularity.
func DefaultLags(g schema.Granularity) []int {
	if g == schema.DayGranularity {
		return []int{1, 7, 28}
	}
	return []int{1, 3, 12}
}

// DefaultWindows returns the rolling window sizes used for a granularity.
func DefaultWindows(g schema.Granularity) []int {
	if g == schema.DayGranularity {
		return []int{7, 28}
	}
	return []int{3, 12}
}

// Builder builds feature rows for one target series and optional auxiliary series.
type Builder struct {
	g        schema.Granularity
	opts     Options
	dims     []schema.Dimension
	names    []string
	attrs    map[schema.Dimension]string
	aux      []auxSeries
	key      string
	encoding []float64
}

type auxSeries struct {
	name       string
	values     map[time.Time]float64
	last       float64
	lastPeriod time.Time
}

// NewBuilder prepares a builder for the target series. Auxiliary series are aligned
// to the target by period and contribute their previous-period value. Periods after
// an auxiliary series carry its last value; earlier gaps are missing values.
func NewBuilder(target schema.MetricSeries, opts Options, aux ...schema.MetricSeries) *Builder {
	g := target.Granularity
	if g == "" {
		g = schema.MonthGranularity
	}
	if len(opts.Lags) == 0 {
		opts.Lags = DefaultLags(g)
	}
	if len(opts.Windows) == 0 {
		opts.Windows = DefaultWindows(g)
	}
	if opts.Encoding == "" {
		opts.Encoding = schema.OneHotEncoding
	}
	opts.Lags = sortedPositive(opts.Lags)
	opts.Windows = sortedPositive(opts.Windows)

	b := &Builder{g: g, opts: opts, key: target.DimensionKey, attrs: schema.ParseDimensionKey(target.DimensionKey)}
	b.dims = lo.Filter(schema.AllDimensions, func(d schema.Dimension, _ int) bool {
		return len(opts.Vocabulary[d]) > 0
	})

	for _, s := range aux {
		a := auxSeries{name: fmt.Sprintf("aux_%s_%s", s.Metric, s.DimensionKey), values: map[time.Time]float64{}}
		for _, p := range s.Points {
			a.values[p.Period] = p.Value
			a.last, a.lastPeriod = p.Value, p.Period
		}
		b.aux = append(b.aux, a)
	}
	b.names = b.buildNames()
	b.encoding = b.encode()
	return b
}

// Names returns the feature column names in row order.
func (b *Builder) Names() []string {
	return b.names
}

func (b *Builder) buildNames() []string {
	var names []string
	for _, k := range b.opts.Lags {
		names = append(names, fmt.Sprintf("lag_%d", k))
	}
	for _, w := range b.opts.Windows {
		names = append(names, fmt.Sprintf("roll_mean_%d", w), fmt.Sprintf("roll_var_%d", w))
	}
	if b.g == schema.DayGranularity {
		names = append(names, "day_of_week", "day_of_month")
	}
	names = append(names, "month")
	if b.opts.Calendar != nil {
		names = append(names, "holiday")
	}
	names = append(names, "trend_index")
	for _, a := range b.aux {
		names = append(names, a.name+"_lag_1")
	}
	for _, d := range b.dims {
		if b.opts.Encoding == schema.OrdinalEncoding {
			names = append(names, string(d))
			continue
		}
		for _, v := range b.opts.Vocabulary[d] {
			names = append(names, fmt.Sprintf("%s=%s", d, v))
		}
	}
	return names
}

// encode returns the constant dimension columns of the target series.
func (b *Builder) encode() []float64 {
	var out []float64
	for _, d := range b.dims {
		vocab := b.opts.Vocabulary[d]
		value, ok := b.attrs[d]
		if b.opts.Encoding == schema.OrdinalEncoding {
			idx := -1
			if ok {
				idx = lo.IndexOf(vocab, value)
			}
			out = append(out, float64(idx+1))
			continue
		}
		for _, v := range vocab {
			if ok && v == value {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}
	return out
}

// Build returns the training rows of the target series. Rows missing a required lag,
// window or auxiliary value are excluded unless AllowMissingLags is set, in which case
// they read 0.
func (b *Builder) Build(target schema.MetricSeries) schema.FeatureSet {
	values := target.Values()
	set := schema.FeatureSet{Names: b.names}
	for i, p := range target.Points {
		row, ok := b.row(values[:i], p.Period, i)
		if !ok {
			continue
		}
		row.Target = p.Value
		set.Rows = append(set.Rows, row)
	}
	return set
}

// NextRow builds the row for a future period from a history that already holds
// every previous value, forecasts included. Missing lags always read 0 here.
func (b *Builder) NextRow(history []float64, period time.Time, index int) schema.FeatureRow {
	row, _ := b.rowWith(history, period, index, true)
	return row
}

func (b *Builder) row(history []float64, period time.Time, index int) (schema.FeatureRow, bool) {
	return b.rowWith(history, period, index, b.opts.AllowMissingLags)
}

func (b *Builder) rowWith(history []float64, period time.Time, index int, allowMissing bool) (schema.FeatureRow, bool) {
	n := len(history)
	values := make([]float64, 0, len(b.names))

	for _, k := range b.opts.Lags {
		if n-k < 0 {
			if !allowMissing {
				return schema.FeatureRow{}, false
			}
			values = append(values, 0)
			continue
		}
		values = append(values, history[n-k])
	}
	for _, w := range b.opts.Windows {
		if n-w < 0 && !allowMissing {
			return schema.FeatureRow{}, false
		}
		window := history[max(0, n-w):]
		values = append(values, algo.Mean(window), algo.Variance(window))
	}
	if b.g == schema.DayGranularity {
		values = append(values, float64(period.Weekday()), float64(period.Day()))
	}
	values = append(values, float64(period.Month()))
	if b.opts.Calendar != nil {
		values = append(values, HolidayFlag(b.opts.Calendar, period, b.g))
	}
	values = append(values, float64(index))
	prev := schema.AddPeriods(period, -1, b.g)
	for _, a := range b.aux {
		v, ok := a.values[prev]
		switch {
		case ok:
		case prev.After(a.lastPeriod):
			v = a.last
		case allowMissing:
			v = 0
		default:
			return schema.FeatureRow{}, false
		}
		values = append(values, v)
	}
	values = append(values, b.encoding...)

	return schema.FeatureRow{Period: period, DimensionKey: b.key, Values: values}, true
}

// MaxLookback returns the largest lag or window, the history a full row needs.
func (b *Builder) MaxLookback() int {
	return max(lo.Max(b.opts.Lags), lo.Max(b.opts.Windows))
}

// VocabularyOf collects the sorted attribute values seen in series dimension keys.
func VocabularyOf(series []schema.MetricSeries) map[schema.Dimension][]string {
	seen := map[schema.Dimension]map[string]struct{}{}
	for _, s := range series {
		for d, v := range schema.ParseDimensionKey(s.DimensionKey) {
			if seen[d] == nil {
				seen[d] = map[string]struct{}{}
			}
			seen[d][v] = struct{}{}
		}
	}
	vocab := make(map[schema.Dimension][]string, len(seen))
	for d, values := range seen {
		keys := lo.Keys(values)
		sort.Strings(keys)
		vocab[d] = keys
	}
	return vocab
}

func sortedPositive(values []int) []int {
	out := lo.Uniq(lo.Filter(values, func(v int, _ int) bool { return v > 0 }))
	sort.Ints(out)
	return out
}
