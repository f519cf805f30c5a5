package outwriter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 { return &v }

func testConfig(mode schema.OutputMode) *contract.Config {
	return &contract.Config{
		Output:       mode,
		Precision:    2,
		Width:        120,
		Workers:      4,
		CacheBackend: schema.SQLiteBackend,
	}
}

func testSeries() []schema.MetricSeries {
	return []schema.MetricSeries{{
		Metric:       schema.SignupsMetric,
		DimensionKey: "package=A",
		Granularity:  schema.MonthGranularity,
		Kind:         schema.FlowKind,
		Points: []schema.SeriesPoint{
			{Period: month(2024, 1), Value: 3},
			{Period: month(2024, 2), Value: 5},
		},
	}}
}

func testBatch() []schema.BatchForecast {
	return []schema.BatchForecast{
		{
			Metric:       schema.RevenueMetric,
			DimensionKey: schema.TotalDimensionKey,
			Result: &schema.ForecastResult{
				Metric:       schema.RevenueMetric,
				DimensionKey: schema.TotalDimensionKey,
				Granularity:  schema.MonthGranularity,
				Horizon:      1,
				Points: []schema.ForecastPoint{
					{Period: month(2024, 7), Point: 120.5, Lower: ptr(100), Upper: ptr(140), Model: "seasonal"},
				},
			},
		},
		{Metric: schema.SignupsMetric, DimensionKey: "package=Z", Err: "seasonal needs at least 24 points, series has 3"},
	}
}

func TestWriteSeriesResults(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteSeriesResults(&buf, testSeries(), testConfig(schema.CSVOut), time.Second))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "metric,dimension_key,granularity,period,value", lines[0])
		assert.Equal(t, "signups,package=A,month,2024-01,3.00", lines[1])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteSeriesResults(&buf, testSeries(), testConfig(schema.JSONOut), time.Second))
		var decoded []schema.MetricSeries
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Len(t, decoded[0].Points, 2)
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteSeriesResults(&buf, testSeries(), testConfig(schema.TextOut), 1500*time.Millisecond))
		out := buf.String()
		assert.Contains(t, out, "package=A")
		assert.Contains(t, out, "2024-02")
		assert.Contains(t, out, "5.00")
		assert.Contains(t, out, "1 series computed in 1.5s with 4 workers")
	})

	t.Run("parquet to writer", func(t *testing.T) {
		var buf bytes.Buffer
		err := WriteSeriesResults(&buf, testSeries(), testConfig(schema.ParquetOut), time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not supported")
	})
}

func TestWriteForecastResults(t *testing.T) {
	t.Run("csv keeps failed keys", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteForecastResults(&buf, testBatch(), testConfig(schema.CSVOut), time.Second))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "revenue,total,2024-07,120.50,100.00,140.00,seasonal,", lines[1])
		assert.True(t, strings.HasPrefix(lines[2], "signups,package=Z,,,,,,"))
		assert.Contains(t, lines[2], "needs at least 24 points")
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteForecastResults(&buf, testBatch(), testConfig(schema.TextOut), time.Second))
		out := buf.String()
		assert.Contains(t, out, "120.50")
		assert.Contains(t, out, "package=Z")
		assert.Contains(t, out, "2 forecasts (1 failed)")
	})
}

func TestWriteRevenueResults(t *testing.T) {
	breakdown := schema.RevenueBreakdown{
		ByType: map[schema.EventType]schema.ForecastResult{
			schema.SignupEvent: {Granularity: schema.MonthGranularity, Points: []schema.ForecastPoint{{Period: month(2024, 7), Point: 10}}},
			schema.RenewEvent:  {Granularity: schema.MonthGranularity, Points: []schema.ForecastPoint{{Period: month(2024, 7), Point: 30}}},
		},
		Total: []schema.ForecastPoint{{Period: month(2024, 7), Point: 40}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRevenueResults(&buf, breakdown, testConfig(schema.CSVOut), time.Second))
	assert.Equal(t, strings.Join([]string{
		"period,type,point,lower,upper",
		"2024-07,signup,10.00,,",
		"2024-07,renew,30.00,,",
		"2024-07,total,40.00,,",
	}, "\n")+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteRevenueResults(&buf, breakdown, testConfig(schema.TextOut), time.Second))
	assert.Contains(t, strings.ToUpper(buf.String()), "SIGNUP")
	assert.Contains(t, buf.String(), "40.00")
}

func TestWriteChurnResults(t *testing.T) {
	scores := schema.RankChurnScores([]schema.ChurnScore{
		{SubscriberID: "low", AsOf: month(2024, 3), Risk: 0.1, PackageTier: "A"},
		{SubscriberID: "high", AsOf: month(2024, 3), Risk: 0.9, PackageTier: "B", Location: "DE"},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteChurnResults(&buf, scores, testConfig(schema.CSVOut), time.Second))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1,high,"))
	assert.True(t, strings.HasSuffix(lines[1], ",0.90,Critical,B,DE"))

	buf.Reset()
	require.NoError(t, WriteChurnResults(&buf, scores, testConfig(schema.TextOut), time.Second))
	assert.Contains(t, buf.String(), "Critical")
	assert.Contains(t, buf.String(), "2 churn scores")
}

func TestWriteRetentionResults(t *testing.T) {
	curves := []schema.RetentionCurve{{
		CohortKey:   month(2024, 1),
		Granularity: schema.MonthGranularity,
		Size:        4,
		Points: []schema.RetentionPoint{
			{Age: 0, Retained: ptr(1)},
			{Age: 1, Retained: ptr(0.5)},
			{Age: 2},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRetentionResults(&buf, curves, testConfig(schema.CSVOut), time.Second))
	assert.Equal(t, strings.Join([]string{
		"cohort,size,age,retained",
		"2024-01,4,0,1",
		"2024-01,4,1,0.5",
		"2024-01,4,2,",
	}, "\n")+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteRetentionResults(&buf, curves, testConfig(schema.TextOut), time.Second))
	assert.Contains(t, buf.String(), "50.00%")
	assert.Contains(t, buf.String(), "+2")

	err := PrintRetentionResults(curves, testConfig(schema.ParquetOut), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parquet output is not supported for retention")
}

func TestWriteReportResults(t *testing.T) {
	t.Run("durations", func(t *testing.T) {
		summary := schema.DurationSummary{
			Total:     4,
			Censored:  1,
			Buckets:   []schema.DurationBucket{{Days: 0, Surviving: 4}, {Days: 30, Surviving: 2}},
			Completed: schema.DistributionStats{Count: 3, Mean: 20, Median: 15, Modes: []float64{15}},
		}
		var buf bytes.Buffer
		require.NoError(t, WriteDurationResults(&buf, summary, testConfig(schema.CSVOut), time.Second))
		assert.Contains(t, buf.String(), "30,2,0.50")

		buf.Reset()
		require.NoError(t, WriteDurationResults(&buf, summary, testConfig(schema.TextOut), time.Second))
		assert.Contains(t, buf.String(), "4 subscribers, 1 still active")
		assert.Contains(t, buf.String(), "50.00%")
	})

	t.Run("conversions", func(t *testing.T) {
		summary := schema.ConversionSummary{
			Points:   []schema.ConversionPoint{{SubscriberID: "a", Origin: "trial", Days: 10}},
			Stats:    schema.DistributionStats{Count: 1, Mean: 10, Median: 10},
			ByOrigin: map[string]schema.DistributionStats{"trial": {Count: 1, Mean: 10, Median: 10}},
		}
		var buf bytes.Buffer
		require.NoError(t, WriteConversionResults(&buf, summary, testConfig(schema.CSVOut), time.Second))
		assert.Equal(t, "subscriber_id,origin,days\na,trial,10.00\n", buf.String())

		buf.Reset()
		require.NoError(t, WriteConversionResults(&buf, summary, testConfig(schema.TextOut), time.Second))
		assert.Contains(t, buf.String(), "trial")
		assert.Contains(t, buf.String(), "all")
	})

	t.Run("volume", func(t *testing.T) {
		reports := []schema.VolumeReport{{
			Month: month(2024, 1), EventType: "all", Value: schema.CountVolume, Total: 4, AvgPerDay: 4.0 / 31, AvgPerActiveDay: 2, ActiveDays: 2,
			BestDay: &schema.DayVolume{Day: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Value: 3},
			Paid: 3, Events: 4, PaidPercent: 75,
		}}
		var buf bytes.Buffer
		require.NoError(t, WriteVolumeResults(&buf, reports, testConfig(schema.CSVOut), time.Second))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "month,"))
		assert.Equal(t, "2024-01,all,count,4.00,0.13,2.00,2,2024-01-05 (3.00),-,3,4,75.00", lines[1])

		buf.Reset()
		require.NoError(t, WriteVolumeResults(&buf, reports, testConfig(schema.TextOut), time.Second))
		assert.Contains(t, buf.String(), "3 of 4 events paid (75.00%)")
	})

	t.Run("revenue by location", func(t *testing.T) {
		reports := []schema.VolumeReport{
			{Location: "DE", EventType: "all", Value: schema.RevenueVolume, Total: 55, ActiveDays: 2, Paid: 3, Events: 4, PaidPercent: 75},
			{Location: "FR", EventType: "all", Value: schema.RevenueVolume, Events: 1},
		}
		var buf bytes.Buffer
		require.NoError(t, WriteVolumeResults(&buf, reports, testConfig(schema.CSVOut), time.Second))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "location,"))
		assert.True(t, strings.HasPrefix(lines[1], "DE,all,revenue,55.00,"))
		assert.True(t, strings.HasSuffix(lines[2], ",0,1,0.00"))

		buf.Reset()
		require.NoError(t, WriteVolumeResults(&buf, reports, testConfig(schema.TextOut), time.Second))
		assert.Contains(t, buf.String(), "Revenue report")
	})

	t.Run("growth", func(t *testing.T) {
		summary := schema.GrowthSummary{
			Horizon:         2,
			Inflow:          []schema.ForecastPoint{{Period: month(2024, 7), Point: 10}, {Period: month(2024, 8), Point: 12}},
			Churn:           []schema.ForecastPoint{{Period: month(2024, 7), Point: 4}, {Period: month(2024, 8), Point: 6}},
			TotalInflow:     22,
			TotalChurn:      10,
			AvgChurn:        5,
			PeakChurn:       6,
			PeakChurnPeriod: month(2024, 8),
			NetGrowth:       12,
		}
		var buf bytes.Buffer
		require.NoError(t, WriteGrowthResults(&buf, summary, testConfig(schema.CSVOut), time.Second))
		assert.Equal(t, "period,inflow,churn,net\n2024-07,10.00,4.00,6.00\n2024-08,12.00,6.00,6.00\n", buf.String())

		buf.Reset()
		require.NoError(t, WriteGrowthResults(&buf, summary, testConfig(schema.TextOut), time.Second))
		assert.Contains(t, buf.String(), "Predicted churn 10.00 (avg 5.00, peak 6.00 in 2024-08), net growth 12.00")

		buf.Reset()
		require.NoError(t, WriteGrowthResults(&buf, summary, testConfig(schema.JSONOut), time.Second))
		assert.Contains(t, buf.String(), `"net_growth": 12`)
	})
}

func TestPrintToFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("csv", func(t *testing.T) {
		cfg := testConfig(schema.CSVOut)
		cfg.OutputFile = filepath.Join(dir, "series.csv")
		require.NoError(t, PrintSeriesResults(testSeries(), cfg, time.Second))
		data, err := os.ReadFile(cfg.OutputFile)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "metric,dimension_key"))
	})

	t.Run("parquet", func(t *testing.T) {
		cfg := testConfig(schema.ParquetOut)
		cfg.OutputFile = filepath.Join(dir, "forecast.parquet")
		require.NoError(t, PrintForecastResults(testBatch(), cfg, time.Second))
		info, err := os.Stat(cfg.OutputFile)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	})
}
