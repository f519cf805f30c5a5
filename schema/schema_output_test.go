package schema_test

import (
	"testing"
	"time"

	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRiskLabel(t *testing.T) {
	tests := []struct {
		name     string
		risk     float64
		expected string
	}{
		{"Critical Upper", 1.0, "Critical"},
		{"Critical Lower", 0.8, "Critical"},
		{"High Upper", 0.79, "High"},
		{"High Lower", 0.6, "High"},
		{"Moderate Upper", 0.59, "Moderate"},
		{"Moderate Lower", 0.4, "Moderate"},
		{"Low Upper", 0.39, "Low"},
		{"Low Lower", 0.0, "Low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, schema.GetRiskLabel(tt.risk))
		})
	}
}

func TestRankChurnScores(t *testing.T) {
	scores := []schema.ChurnScore{
		{SubscriberID: "b", Risk: 0.2},
		{SubscriberID: "a", Risk: 0.9},
		{SubscriberID: "c", Risk: 0.2},
	}
	ranked := schema.RankChurnScores(scores)
	require.Len(t, ranked, 3)
	assert.Equal(t, "a", ranked[0].SubscriberID)
	assert.Equal(t, "Critical", ranked[0].Label)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "b", ranked[1].SubscriberID)
	assert.Equal(t, "c", ranked[2].SubscriberID)
	assert.Equal(t, "b", scores[0].SubscriberID, "input must not be reordered")
}

func TestDimensionKeyRoundTrip(t *testing.T) {
	assert.Equal(t, schema.TotalDimensionKey, schema.DimensionKey(nil))

	key := schema.DimensionKey(map[schema.Dimension]string{
		schema.PackageDimension:  "A",
		schema.LocationDimension: "DE",
	})
	assert.Equal(t, "location=DE|package=A", key)
	assert.Equal(t, map[schema.Dimension]string{
		schema.PackageDimension:  "A",
		schema.LocationDimension: "DE",
	}, schema.ParseDimensionKey(key))
	assert.Empty(t, schema.ParseDimensionKey(schema.TotalDimensionKey))
}

func TestDateRangeIntersects(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	janFeb := schema.NewDateRange(jan, mar)
	march := schema.NewDateRange(mar, apr)
	febMar := schema.NewDateRange(feb, apr)

	assert.False(t, janFeb.Intersects(march), "half-open ranges that touch do not intersect")
	assert.True(t, janFeb.Intersects(febMar))
	assert.True(t, march.Intersects(febMar))
	assert.True(t, janFeb.Contains(feb))
	assert.False(t, janFeb.Contains(mar))
}

func TestPeriodHelpers(t *testing.T) {
	ts := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), schema.TruncatePeriod(ts, schema.MonthGranularity))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), schema.TruncatePeriod(ts, schema.DayGranularity))

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), schema.AddPeriods(jan, 12, schema.MonthGranularity))
	assert.Equal(t, 14, schema.PeriodsBetween(jan, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), schema.MonthGranularity))
	assert.Equal(t, 31, schema.PeriodsBetween(jan, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), schema.DayGranularity))

	grid := schema.PeriodGrid(schema.NewDateRange(jan, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)), schema.MonthGranularity)
	require.Len(t, grid, 3)
	assert.Equal(t, "2024-03", schema.FormatPeriod(grid[2], schema.MonthGranularity))

	p, err := schema.ParsePeriod("2024-02", schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p)

	_, err = schema.ParsePeriod("February", schema.MonthGranularity)
	assert.Error(t, err)
}

func TestModelConfigHash(t *testing.T) {
	a := schema.DefaultModelConfig()
	b := schema.DefaultModelConfig()
	assert.Equal(t, a.Hash(), b.Hash())

	b.Combiner = schema.MedianCombiner
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, schema.StockKind, schema.KindOf(schema.ActiveMetric))
	assert.Equal(t, schema.FlowKind, schema.KindOf(schema.RevenueMetric))
	assert.True(t, schema.SignupEvent.IsActivating())
	assert.False(t, schema.CancelEvent.IsActivating())
	assert.Equal(t, schema.CancellationsMetric, schema.CancelEvent.CountMetric())
}
