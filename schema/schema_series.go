package schema

import (
	"sort"
	"strings"
	"time"
)

// SeriesPoint is one period of a metric series.
type SeriesPoint struct {
	Period time.Time `json:"period"`
	Value  float64   `json:"value"`
}

// MetricSeries is a time-indexed metric for one dimension key.
// Periods are strictly increasing with no duplicates and no implicit gaps.
type MetricSeries struct {
	Metric       MetricName    `json:"metric"`
	DimensionKey string        `json:"dimension_key"`
	Granularity  Granularity   `json:"granularity"`
	Kind         MetricKind    `json:"kind"`
	Points       []SeriesPoint `json:"points"`
}

// Values returns the series values in period order.
func (s MetricSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Sum returns the total of all values.
func (s MetricSeries) Sum() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Value
	}
	return total
}

// Range returns the half-open range covered by the series.
func (s MetricSeries) Range() DateRange {
	if len(s.Points) == 0 {
		return DateRange{}
	}
	return DateRange{
		Start: s.Points[0].Period,
		End:   NextPeriod(s.Points[len(s.Points)-1].Period, s.Granularity),
	}
}

// Slice returns a copy of the series restricted to periods inside r.
func (s MetricSeries) Slice(r DateRange) MetricSeries {
	out := s
	out.Points = nil
	for _, p := range s.Points {
		if r.Contains(p.Period) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// DimensionKey builds the canonical key for a set of dimension values.
// Keys look like "location=DE|package=A"; no dimensions yields "total".
func DimensionKey(values map[Dimension]string) string {
	if len(values) == 0 {
		return TotalDimensionKey
	}
	parts := make([]string, 0, len(values))
	for d, v := range values {
		parts = append(parts, string(d)+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// ParseDimensionKey splits a key built by DimensionKey back into its values.
func ParseDimensionKey(key string) map[Dimension]string {
	out := map[Dimension]string{}
	if key == "" || key == TotalDimensionKey {
		return out
	}
	for part := range strings.SplitSeq(key, "|") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[Dimension(name)] = value
	}
	return out
}

// SortSeries orders series by metric then dimension key.
func SortSeries(series []MetricSeries) {
	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return series[i].DimensionKey < series[j].DimensionKey
	})
}
