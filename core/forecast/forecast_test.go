package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pattern = []float64{-10, -6, -2, 0, 4, 8, 10, 6, 2, 0, -4, -8}

func monthlySeries(values ...float64) schema.MetricSeries {
	s := schema.MetricSeries{Metric: schema.SignupsMetric, DimensionKey: "total", Granularity: schema.MonthGranularity, Kind: schema.FlowKind}
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		s.Points = append(s.Points, schema.SeriesPoint{Period: start.AddDate(0, i, 0), Value: v})
	}
	return s
}

func seasonalValues(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + 2*float64(i) + pattern[i%12]
	}
	return values
}

func engineFor(t *testing.T, mutate func(*schema.ModelConfig)) *Engine {
	t.Helper()
	cfg := schema.DefaultModelConfig()
	cfg.Trees = 50
	mutate(&cfg)
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func assertBoundsOrdered(t *testing.T, points []schema.ForecastPoint) {
	t.Helper()
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Point, 0.0)
		if p.Lower == nil || p.Upper == nil {
			continue
		}
		assert.LessOrEqual(t, *p.Lower, p.Point, "period %s", p.Period)
		assert.LessOrEqual(t, p.Point, *p.Upper, "period %s", p.Period)
	}
}

func TestSeasonalInsufficientHistory(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) { c.Models = []schema.ModelName{schema.SeasonalModel} })
	_, err := e.Forecast(context.Background(), Request{Series: monthlySeries(1, 2, 3), Horizon: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
}

func TestSeasonalRecoversTrendAndSeason(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) {
		c.Models = []schema.ModelName{schema.SeasonalModel}
		c.RemoveOutliers = false
	})
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(seasonalValues(36)...), Horizon: 12})
	require.NoError(t, err)
	require.Len(t, result.Points, 12)
	assert.Equal(t, []schema.ModelName{schema.SeasonalModel}, result.Models)

	expected := seasonalValues(48)[36:]
	for i, p := range result.Points {
		assert.InDelta(t, expected[i], p.Point, 1e-6, "step %d", i+1)
		assert.Equal(t, "seasonal", p.Model)
		assert.Empty(t, p.Estimates, "a single model passes through")
	}
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), result.Points[0].Period)
	assertBoundsOrdered(t, result.Points)
}

func TestSeasonalConstantSeriesCollapsesIntervals(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 50
	}
	e := engineFor(t, func(c *schema.ModelConfig) { c.Models = []schema.ModelName{schema.SeasonalModel} })
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(values...), Horizon: 4})
	require.NoError(t, err)
	for _, p := range result.Points {
		require.NotNil(t, p.Lower)
		require.NotNil(t, p.Upper)
		assert.InDelta(t, 50, p.Point, 1e-9)
		assert.InDelta(t, *p.Lower, *p.Upper, 1e-9)
	}
}

func TestForecastClampsNegative(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 100 - 4*float64(i)
	}
	e := engineFor(t, func(c *schema.ModelConfig) { c.Models = []schema.ModelName{schema.SeasonalModel} })
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(values...), Horizon: 12})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Points[11].Point)
	assertBoundsOrdered(t, result.Points)
}

func TestGBRTHasNoBoundsByDefault(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) { c.Models = []schema.ModelName{schema.GBRTModel} })
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(seasonalValues(36)...), Horizon: 6})
	require.NoError(t, err)
	require.Len(t, result.Points, 6)
	for _, p := range result.Points {
		assert.Nil(t, p.Lower)
		assert.Nil(t, p.Upper)
		assert.False(t, math.IsNaN(p.Point))
	}
}

func TestGBRTResidualIntervals(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) {
		c.Models = []schema.ModelName{schema.GBRTModel}
		c.ResidualIntervals = true
	})
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(seasonalValues(36)...), Horizon: 3})
	require.NoError(t, err)
	for _, p := range result.Points {
		require.NotNil(t, p.Lower)
		require.NotNil(t, p.Upper)
	}
	assertBoundsOrdered(t, result.Points)
}

func TestGBRTInsufficientHistory(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) { c.Models = []schema.ModelName{schema.GBRTModel} })
	_, err := e.Forecast(context.Background(), Request{Series: monthlySeries(1, 2, 3, 4, 5), Horizon: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
}

func TestForecastCombinesModels(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) { c.RemoveOutliers = false })
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(seasonalValues(36)...), Horizon: 6})
	require.NoError(t, err)
	assert.Equal(t, []schema.ModelName{schema.SeasonalModel, schema.GBRTModel}, result.Models)
	assert.Equal(t, schema.MeanCombiner, result.Combiner)

	for _, p := range result.Points {
		require.Len(t, p.Estimates, 2)
		mean := (p.Estimates[0].Value + p.Estimates[1].Value) / 2
		assert.InDelta(t, mean, p.Point, 1e-9)
		assert.Equal(t, "mean(seasonal,gbrt)", p.Model)
		require.NotNil(t, p.Lower, "seasonal bounds are kept")
	}
	assertBoundsOrdered(t, result.Points)
}

func TestForecastAbortsWhenAnyModelFails(t *testing.T) {
	before := testutil.ToFloat64(metrics.ForecastFailuresTotal.WithLabelValues("seasonal", "insufficient_history"))

	e := engineFor(t, func(c *schema.ModelConfig) {
		c.AllowMissingLags = true
		c.Lags = []int{1}
		c.Windows = []int{2}
	})
	// 18 monthly points: enough for gbrt, short of the two cycles seasonal needs.
	result, err := e.Forecast(context.Background(), Request{Series: monthlySeries(seasonalValues(18)...), Horizon: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
	assert.Contains(t, err.Error(), "seasonal")
	assert.Empty(t, result.Models)
	assert.Empty(t, result.Points)

	after := testutil.ToFloat64(metrics.ForecastFailuresTotal.WithLabelValues("seasonal", "insufficient_history"))
	assert.Equal(t, before+1, after)
}

func TestForecastInvalidRequests(t *testing.T) {
	e := engineFor(t, func(*schema.ModelConfig) {})
	_, err := e.Forecast(context.Background(), Request{Series: monthlySeries(1, 2), Horizon: 0})
	assert.Error(t, err)

	_, err = e.Forecast(context.Background(), Request{Series: monthlySeries(), Horizon: 2})
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))

	_, err = NewEngine(schema.ModelConfig{Models: []schema.ModelName{"arima"}})
	assert.Error(t, err)
	_, err = NewEngine(schema.ModelConfig{Combiner: "max"})
	assert.Error(t, err)
}

func TestCombinerFor(t *testing.T) {
	tests := []struct {
		name     schema.CombinerName
		values   []float64
		expected float64
	}{
		{name: "", values: []float64{1, 2, 6}, expected: 3},
		{name: schema.MeanCombiner, values: []float64{1, 3}, expected: 2},
		{name: schema.MedianCombiner, values: []float64{1, 2, 6}, expected: 2},
	}
	for _, tt := range tests {
		c, err := CombinerFor(tt.name)
		require.NoError(t, err)
		assert.InDelta(t, tt.expected, c.Combine(tt.values), 1e-9)
	}
}

func TestPrepareWinsorizesLongSeries(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 10 + float64(i%3)
	}
	values[10] = 1000

	e := engineFor(t, func(*schema.ModelConfig) {})
	prepared := e.prepare(monthlySeries(values...))
	assert.Less(t, prepared.Points[10].Value, 1000.0)
	assert.Equal(t, 1000.0, values[10])

	short := e.prepare(monthlySeries(values[:20]...))
	assert.Equal(t, 1000.0, short.Points[10].Value, "20 points or fewer are left alone")
}

// flakyModel fails with a numeric error until it is replaced by its fallback.
type flakyModel struct {
	fallback bool
	fits     *int
}

func (m *flakyModel) Name() schema.ModelName { return "flaky" }

func (m *flakyModel) Fit(context.Context, schema.MetricSeries) error {
	*m.fits++
	if !m.fallback {
		return contract.NewModelFitError("flaky", nil)
	}
	return nil
}

func (m *flakyModel) Predict(_ context.Context, horizon int) ([]Prediction, error) {
	return make([]Prediction, horizon), nil
}

func (m *flakyModel) Fallback() Model {
	return &flakyModel{fallback: true, fits: m.fits}
}

func TestRunRetriesWithFallback(t *testing.T) {
	fits := 0
	e := engineFor(t, func(*schema.ModelConfig) {})
	preds, err := e.run(context.Background(), &flakyModel{fits: &fits}, monthlySeries(1, 2, 3), 2)
	require.NoError(t, err)
	assert.Len(t, preds, 2)
	assert.Equal(t, 2, fits)
}

func TestRunSurfacesInsufficientHistoryWithoutRetry(t *testing.T) {
	e := engineFor(t, func(c *schema.ModelConfig) {})
	_, err := e.run(context.Background(), NewSeasonal(e.Config(), nil), monthlySeries(1, 2, 3), 2)
	assert.True(t, errors.Is(err, contract.ErrInsufficientHistory))
	assert.False(t, errors.Is(err, contract.ErrModelFit))
}
