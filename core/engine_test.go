package core

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/iocache"
	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func raw(id, eventType, ts, tier string) schema.RawEvent {
	amount := "10"
	if eventType == "cancel" {
		amount = ""
	}
	return schema.RawEvent{SubscriberID: id, EventType: eventType, Timestamp: ts, PackageTier: tier, Location: "DE", Amount: amount}
}

// lifecycleEvents has a January cohort of four and a February cohort of one.
func lifecycleEvents() []schema.RawEvent {
	return []schema.RawEvent{
		raw("S1", "signup", "2024-01-05", "A"),
		raw("b", "signup", "2024-01-06", "A"),
		raw("c", "signup", "2024-01-07", "B"),
		raw("d", "signup", "2024-01-08", "B"),
		raw("b", "cancel", "2024-01-20", "A"),
		raw("e", "signup", "2024-02-01", "A"),
		raw("S1", "cancel", "2024-03-10", "A"),
		raw("c", "renew", "2024-03-12", "B"),
	}
}

func newMockSource(events []schema.RawEvent) *contract.MockEventSource {
	src := &contract.MockEventSource{}
	src.On("FetchEvents", mock.Anything, mock.Anything).Return(events, nil)
	return src
}

func newTestEngine(src contract.EventSource) *Engine {
	return NewEngine(Options{Source: src, SourceID: "test", Granularity: schema.MonthGranularity, Workers: 2})
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestEngineActiveSeries(t *testing.T) {
	src := newMockSource([]schema.RawEvent{
		raw("S1", "signup", "2024-01-05", "A"),
		raw("S1", "cancel", "2024-03-10", "A"),
	})
	e := newTestEngine(src)

	series, err := e.GetMetricSeries(context.Background(), schema.ActiveMetric, "package=A",
		schema.NewDateRange(month(2024, 1), month(2024, 5)), schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 0}, series.Values())
	assert.Equal(t, schema.StockKind, series.Kind)
}

func TestEngineMissingKeyIsZeroSeries(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))

	series, err := e.GetMetricSeries(context.Background(), schema.SignupsMetric, "package=Z", schema.DateRange{}, schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, "package=Z", series.DimensionKey)
	assert.Equal(t, []float64{0, 0, 0}, series.Values(), "observed range is January to March")
}

func TestEngineTotalSeries(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))

	series, err := e.GetMetricSeries(context.Background(), schema.SignupsMetric, "", schema.DateRange{}, schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, schema.TotalDimensionKey, series.DimensionKey)
	assert.Equal(t, []float64{4, 1, 0}, series.Values())
}

func TestEngineInvalidArguments(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"unknown metric", func() error {
			_, err := e.GetMetricSeries(ctx, "churned", "", schema.DateRange{}, schema.MonthGranularity)
			return err
		}},
		{"unknown granularity", func() error {
			_, err := e.GetMetricSeries(ctx, schema.ActiveMetric, "", schema.DateRange{}, "week")
			return err
		}},
		{"malformed key", func() error {
			_, err := e.GetMetricSeries(ctx, schema.ActiveMetric, "garbage", schema.DateRange{}, schema.MonthGranularity)
			return err
		}},
		{"unknown dimension", func() error {
			_, err := e.GetMetricSeries(ctx, schema.ActiveMetric, "color=red", schema.DateRange{}, schema.MonthGranularity)
			return err
		}},
		{"zero horizon", func() error {
			_, err := e.GetForecast(ctx, schema.ActiveMetric, "", 0, schema.DefaultModelConfig())
			return err
		}},
		{"horizon too long", func() error {
			_, err := e.GetForecast(ctx, schema.ActiveMetric, "", contract.MaxHorizon+1, schema.DefaultModelConfig())
			return err
		}},
		{"missing as-of", func() error {
			_, err := e.GetChurnScores(ctx, time.Time{})
			return err
		}},
		{"unknown event type", func() error {
			_, err := e.GetVolumeReport(ctx, schema.VolumeQuery{EventType: "trial"})
			return err
		}},
		{"unknown volume value", func() error {
			_, err := e.GetVolumeReport(ctx, schema.VolumeQuery{Value: "profit"})
			return err
		}},
		{"unknown volume grouping", func() error {
			_, err := e.GetVolumeReport(ctx, schema.VolumeQuery{GroupBy: "package"})
			return err
		}},
		{"growth horizon", func() error {
			_, err := e.ForecastGrowth(ctx, 0, schema.DefaultModelConfig())
			return err
		}},
		{"missing cohort", func() error {
			_, err := e.GetRetentionCurve(ctx, month(2023, 6), schema.MonthGranularity)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, contract.ErrDataValidation), "got %v", err)
		})
	}
}

func TestEngineSnapshotLoadedOnce(t *testing.T) {
	src := newMockSource(lifecycleEvents())
	e := newTestEngine(src)

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			_, err := e.GetMetricSeries(context.Background(), schema.ActiveMetric, "", schema.DateRange{}, schema.MonthGranularity)
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, int64(1), src.Calls.Load(), "concurrent first callers share one load")
	assert.Equal(t, 1, e.ResultCacheStatus().Entries, "concurrent callers share one computation")
}

func TestEngineSnapshotSourceError(t *testing.T) {
	src := &contract.MockEventSource{}
	src.On("FetchEvents", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	e := newTestEngine(src)

	_, err := e.GetDurations(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestEngineRefreshKeepsUnaffectedRanges(t *testing.T) {
	src := newMockSource(lifecycleEvents())
	e := newTestEngine(src)
	ctx := context.Background()

	janFeb := schema.NewDateRange(month(2024, 1), month(2024, 3))
	march := schema.NewDateRange(month(2024, 3), month(2024, 4))
	for _, r := range []schema.DateRange{janFeb, march} {
		_, err := e.GetMetricSeries(ctx, schema.SignupsMetric, "", r, schema.MonthGranularity)
		require.NoError(t, err)
	}
	require.Equal(t, 2, e.ResultCacheStatus().Entries)

	newData := schema.NewDateRange(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC))
	dropped, err := e.Refresh(ctx, newData)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, int64(2), src.Calls.Load(), "refresh reads the source again")

	hits := e.ResultCacheStatus().Hits
	_, err = e.GetMetricSeries(ctx, schema.SignupsMetric, "", janFeb, schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, hits+1, e.ResultCacheStatus().Hits, "January to February is still cached")
}

func TestEngineRetention(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	ctx := context.Background()

	curves, err := e.GetRetentionCurves(ctx, schema.MonthGranularity)
	require.NoError(t, err)
	require.Len(t, curves, 2)

	jan, err := e.GetRetentionCurve(ctx, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, 4, jan.Size)
	require.NotEmpty(t, jan.Points)
	for i := 1; i < len(jan.Points); i++ {
		if jan.Points[i].Retained == nil || jan.Points[i-1].Retained == nil {
			continue
		}
		assert.LessOrEqual(t, *jan.Points[i].Retained, *jan.Points[i-1].Retained, "retention never increases")
	}
}

func TestEngineChurnScores(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	asOf := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	scores, err := e.GetChurnScores(context.Background(), asOf)
	require.NoError(t, err)

	ids := make([]string, 0, len(scores))
	for _, s := range scores {
		ids = append(ids, s.SubscriberID)
		assert.GreaterOrEqual(t, s.Risk, 0.0)
		assert.LessOrEqual(t, s.Risk, 1.0)
		assert.Equal(t, asOf, s.AsOf)
	}
	assert.Equal(t, []string{"S1", "c", "d", "e"}, ids, "only subscribers active at as-of are scored")
}

func TestEngineDurationsAndConversions(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	ctx := context.Background()

	durations, err := e.GetDurations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, durations.Total)

	conversions, err := e.GetConversions(ctx)
	require.NoError(t, err)
	assert.Empty(t, conversions.Points, "no trial or lead origins")
}

func TestEngineVolumeReport(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	ctx := context.Background()

	reports, err := e.GetVolumeReport(ctx, schema.VolumeQuery{EventType: schema.SignupEvent})
	require.NoError(t, err)
	require.Len(t, reports, 3, "observed range is January to March")
	assert.InDelta(t, 4, reports[0].Total, 1e-9)
	assert.Equal(t, schema.CountVolume, reports[0].Value)
	assert.Equal(t, 4, reports[0].Paid)
	assert.Equal(t, 5, reports[0].Events)

	byLocation, err := e.GetVolumeReport(ctx, schema.VolumeQuery{Value: schema.RevenueVolume, GroupBy: schema.LocationGrouping})
	require.NoError(t, err)
	require.Len(t, byLocation, 1)
	assert.Equal(t, "DE", byLocation[0].Location)
	assert.InDelta(t, 60, byLocation[0].Total, 1e-9, "five signups and a renewal")
	assert.Equal(t, 6, byLocation[0].Paid)
	assert.Equal(t, 8, byLocation[0].Events)
}

// monthlySignups generates signups for every month of 2022 and 2023 plus half of 2024.
func monthlySignups() []schema.RawEvent {
	var events []schema.RawEvent
	for i := range 30 {
		m := month(2022, time.January).AddDate(0, i, 0)
		for j := range 2 + i%3 {
			events = append(events, raw(fmt.Sprintf("a-%d-%d", i, j), "signup", m.AddDate(0, 0, 2+j).Format(time.DateOnly), "A"))
		}
		events = append(events, raw(fmt.Sprintf("b-%d", i), "signup", m.AddDate(0, 0, 9).Format(time.DateOnly), "B"))
	}
	return events
}

func seasonalOnly() schema.ModelConfig {
	cfg := schema.DefaultModelConfig()
	cfg.Models = []schema.ModelName{schema.SeasonalModel}
	return cfg
}

func TestEngineForecast(t *testing.T) {
	e := newTestEngine(newMockSource(monthlySignups()))
	ctx := context.Background()

	res, err := e.GetForecast(ctx, schema.SignupsMetric, "package=A", 3, seasonalOnly())
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	assert.Equal(t, month(2024, 7), res.Points[0].Period)
	for _, p := range res.Points {
		require.NotNil(t, p.Lower)
		require.NotNil(t, p.Upper)
		assert.LessOrEqual(t, *p.Lower, p.Point)
		assert.LessOrEqual(t, p.Point, *p.Upper)
	}

	again, err := e.GetForecast(ctx, schema.SignupsMetric, "package=A", 3, seasonalOnly())
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestEngineForecastInsufficientHistory(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))

	_, err := e.GetForecast(context.Background(), schema.SignupsMetric, "", 3, seasonalOnly())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
}

func TestEngineForecastBatch(t *testing.T) {
	t.Run("every key succeeds", func(t *testing.T) {
		e := newTestEngine(newMockSource(monthlySignups()))
		var mu sync.Mutex
		var seen []string
		results, err := e.ForecastBatch(context.Background(),
			[]schema.MetricName{schema.SignupsMetric, schema.ActiveMetric},
			[]schema.Dimension{schema.PackageDimension}, 2, seasonalOnly(),
			func(b schema.BatchForecast) {
				mu.Lock()
				seen = append(seen, string(b.Metric)+"/"+b.DimensionKey)
				mu.Unlock()
			})
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Len(t, seen, 4)
		assert.Equal(t, schema.ActiveMetric, results[0].Metric, "results are sorted")
		assert.Equal(t, "package=A", results[0].DimensionKey)
		for _, r := range results {
			assert.Empty(t, r.Err)
			require.NotNil(t, r.Result)
			assert.Len(t, r.Result.Points, 2)
		}
	})

	t.Run("failures are reported per key", func(t *testing.T) {
		e := newTestEngine(newMockSource(lifecycleEvents()))
		results, err := e.ForecastBatch(context.Background(),
			[]schema.MetricName{schema.SignupsMetric}, []schema.Dimension{schema.PackageDimension}, 2, seasonalOnly(), nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Nil(t, r.Result)
			assert.Contains(t, r.Err, "needs at least 24 points")
		}
	})
}

func TestEngineForecastRevenueByType(t *testing.T) {
	e := newTestEngine(newMockSource(monthlySignups()))

	breakdown, err := e.ForecastRevenueByType(context.Background(), 2, seasonalOnly())
	require.NoError(t, err)
	require.Contains(t, breakdown.ByType, schema.SignupEvent)
	require.Len(t, breakdown.Total, 2)

	signups := breakdown.ByType[schema.SignupEvent]
	for i, p := range breakdown.Total {
		assert.Equal(t, "sum", p.Model)
		assert.InDelta(t, signups.Points[i].Point, p.Point, 1e-9, "only signups carry revenue")
	}
}

func TestEngineForecastRevenueFailsWhenAnyTypeFails(t *testing.T) {
	events := append(monthlySignups(), raw("a-27-0", "upgrade", "2024-05-10", "B"))
	e := newTestEngine(newMockSource(events))

	breakdown, err := e.ForecastRevenueByType(context.Background(), 2, seasonalOnly())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory), "got %v", err)
	assert.Contains(t, err.Error(), "upgrade")
	assert.Empty(t, breakdown.ByType)
	assert.Empty(t, breakdown.Total, "a partial total is never returned")
}

func TestTrimLeadingZeros(t *testing.T) {
	series := schema.MetricSeries{Points: []schema.SeriesPoint{
		{Period: month(2024, 1)}, {Period: month(2024, 2)}, {Period: month(2024, 3), Value: 5}, {Period: month(2024, 4)},
	}}
	trimmed := trimLeadingZeros(series)
	assert.Equal(t, []float64{5, 0}, trimmed.Values())
	assert.Len(t, series.Points, 4, "input is not modified")
	assert.Empty(t, trimLeadingZeros(schema.MetricSeries{Points: series.Points[:2]}).Points)
}

// withCancellations adds one cancellation per month to monthlySignups.
func withCancellations() []schema.RawEvent {
	events := monthlySignups()
	for i := range 30 {
		m := month(2022, time.January).AddDate(0, i, 0)
		events = append(events, raw(fmt.Sprintf("a-%d-0", i), "cancel", m.AddDate(0, 0, 20).Format(time.DateOnly), "A"))
	}
	return events
}

func TestEngineForecastGrowth(t *testing.T) {
	e := newTestEngine(newMockSource(withCancellations()))

	summary, err := e.ForecastGrowth(context.Background(), 3, seasonalOnly())
	require.NoError(t, err)
	require.Len(t, summary.Inflow, 3)
	require.Len(t, summary.Churn, 3)
	assert.Equal(t, 3, summary.Horizon)

	var churn float64
	for _, p := range summary.Churn {
		assert.GreaterOrEqual(t, p.Point, 0.0)
		assert.Equal(t, math.Round(p.Point), p.Point, "predictions are whole events")
		assert.LessOrEqual(t, p.Point, summary.PeakChurn)
		churn += p.Point
	}
	assert.InDelta(t, churn, summary.TotalChurn, 1e-9)
	assert.InDelta(t, churn/3, summary.AvgChurn, 1e-9)
	assert.InDelta(t, summary.TotalInflow-summary.TotalChurn, summary.NetGrowth, 1e-9)
	assert.Positive(t, summary.TotalInflow)
}

func TestEngineForecastGrowthInsufficientHistory(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))

	_, err := e.ForecastGrowth(context.Background(), 3, seasonalOnly())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory), "got %v", err)
	assert.Contains(t, err.Error(), "growth forecast for")
}

func TestSummarizeGrowth(t *testing.T) {
	inflow := []schema.ForecastPoint{{Period: month(2025, 1), Point: 10}, {Period: month(2025, 2), Point: 8}, {Period: month(2025, 3), Point: 12}}
	churn := []schema.ForecastPoint{{Period: month(2025, 1), Point: 3}, {Period: month(2025, 2), Point: 7}, {Period: month(2025, 3), Point: 5}}

	summary := summarizeGrowth(3, inflow, churn)
	assert.InDelta(t, 30, summary.TotalInflow, 1e-9)
	assert.InDelta(t, 15, summary.TotalChurn, 1e-9)
	assert.InDelta(t, 5, summary.AvgChurn, 1e-9)
	assert.InDelta(t, 7, summary.PeakChurn, 1e-9)
	assert.Equal(t, month(2025, 2), summary.PeakChurnPeriod)
	assert.InDelta(t, 15, summary.NetGrowth, 1e-9)

	empty := summarizeGrowth(3, nil, nil)
	assert.Zero(t, empty.AvgChurn)
	assert.True(t, empty.PeakChurnPeriod.IsZero())
}

func TestForecastAuxiliarySeries(t *testing.T) {
	assert.Equal(t, []schema.MetricName{schema.CancellationsMetric, schema.ActiveMetric}, withAux([]schema.MetricName{schema.CancellationsMetric}))
	assert.Equal(t, []schema.MetricName{schema.SignupsMetric}, withAux([]schema.MetricName{schema.SignupsMetric}))

	set := []schema.MetricSeries{
		{Metric: schema.ActiveMetric, DimensionKey: "package=A"},
		{Metric: schema.CancellationsMetric, DimensionKey: "package=A"},
		{Metric: schema.CancellationsMetric, DimensionKey: "package=B"},
	}
	aux := auxFor(set, set[1])
	require.Len(t, aux, 1)
	assert.Equal(t, schema.ActiveMetric, aux[0].Metric)
	assert.Nil(t, auxFor(set, set[0]))
	assert.Nil(t, auxFor(set, set[2]), "no active series for the key")
}

func TestEngineForecastBatchSkipsAuxiliaryMetrics(t *testing.T) {
	e := newTestEngine(newMockSource(withCancellations()))

	results, err := e.ForecastBatch(context.Background(), []schema.MetricName{schema.CancellationsMetric},
		[]schema.Dimension{schema.PackageDimension}, 2, schema.DefaultModelConfig(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "only package A cancels")
	assert.Equal(t, schema.CancellationsMetric, results[0].Metric)
	assert.Empty(t, results[0].Err)
}

func TestEngineStaleViewIsNotCached(t *testing.T) {
	src := &contract.MockEventSource{}
	src.On("FetchEvents", mock.Anything, mock.Anything).Return([]schema.RawEvent{
		raw("a", "signup", "2024-01-05", "A"),
	}, nil).Once()
	src.On("FetchEvents", mock.Anything, mock.Anything).Return([]schema.RawEvent{
		raw("a", "signup", "2024-01-05", "A"),
		raw("b", "signup", "2024-01-06", "A"),
	}, nil)
	e := newTestEngine(src)

	ctx, old, err := e.begin(context.Background())
	require.NoError(t, err)
	_, err = e.Refresh(ctx, schema.NewDateRange(month(2024, 1), month(2024, 2)))
	require.NoError(t, err)

	// A request that captured the old snapshot finishes after the refresh.
	set, err := e.seriesSet(ctx, old, []schema.MetricName{schema.SignupsMetric}, nil, schema.DateRange{}, schema.MonthGranularity)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, []float64{1}, set[0].Values())
	assert.Zero(t, e.ResultCacheStatus().Entries, "a result computed from the old snapshot is not stored")

	series, err := e.GetMetricSeries(context.Background(), schema.SignupsMetric, "", schema.DateRange{}, schema.MonthGranularity)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, series.Values())
	assert.Equal(t, 1, e.ResultCacheStatus().Entries)
}

func TestSumForecasts(t *testing.T) {
	lo1, hi1, lo2, hi2 := 1.0, 3.0, 10.0, 30.0
	jan, feb := month(2025, 1), month(2025, 2)
	total := sumForecasts([]schema.ForecastResult{
		{Points: []schema.ForecastPoint{{Period: jan, Point: 2, Lower: &lo1, Upper: &hi1}, {Period: feb, Point: 2}}},
		{Points: []schema.ForecastPoint{{Period: jan, Point: 20, Lower: &lo2, Upper: &hi2}, {Period: feb, Point: 20, Lower: &lo2, Upper: &hi2}}},
	})
	require.Len(t, total, 2)
	assert.InDelta(t, 22, total[0].Point, 1e-9)
	require.NotNil(t, total[0].Lower)
	assert.InDelta(t, 11, *total[0].Lower, 1e-9)
	assert.InDelta(t, 33, *total[0].Upper, 1e-9)
	assert.Nil(t, total[1].Lower, "bounds need every component")
}

func TestEnginePersistentSnapshot(t *testing.T) {
	store, err := iocache.NewCacheStore("subpulse_event_cache", schema.SQLiteBackend, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	first := newMockSource(lifecycleEvents())
	e1 := NewEngine(Options{Source: first, SourceID: "db", Store: store, MaxAge: time.Hour})
	s1, err := e1.Snapshot(context.Background())
	require.NoError(t, err)

	second := newMockSource(nil)
	e2 := NewEngine(Options{Source: second, SourceID: "db", Store: store, MaxAge: time.Hour})
	s2, err := e2.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.Calls.Load(), "snapshot comes from the store")
	assert.Len(t, s2.Events, len(s1.Events))
	assert.NotEqual(t, s1.ID, s2.ID)

	other := newMockSource(nil)
	e3 := NewEngine(Options{Source: other, SourceID: "elsewhere", Store: store})
	_, err = e3.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Calls.Load(), "a different source misses")
}

func TestSnapshotEventsUpTo(t *testing.T) {
	e := newTestEngine(newMockSource(lifecycleEvents()))
	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.EventsUpTo(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)), 3)
	assert.Len(t, snap.EventsUpTo(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)), 8)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), snap.ObservedEnd())
}
