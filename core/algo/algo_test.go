package algo

import (
	"math"
	"testing"
	"time"

	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQuantile tests interpolated quantiles.
func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		q        float64
		expected float64
	}{
		{name: "empty slice", values: []float64{}, q: 0.5, expected: 0},
		{name: "single value", values: []float64{5}, q: 0.9, expected: 5},
		{name: "odd median", values: []float64{3, 1, 2}, q: 0.5, expected: 2},
		{name: "even median", values: []float64{4, 1, 3, 2}, q: 0.5, expected: 2.5},
		{name: "first quartile", values: []float64{1, 2, 3, 4, 5}, q: 0.25, expected: 2},
		{name: "clamped above", values: []float64{1, 2, 3}, q: 2, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Quantile(tt.values, tt.q), 1e-9)
		})
	}
}

func TestQuantileDoesNotModifyInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Quantile(values, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestMeanVariance(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, 1.25, Variance([]float64{1, 2, 3, 4}), 1e-9)
	assert.Equal(t, 0.0, Variance([]float64{7}))
	assert.Equal(t, 0.0, StdDev([]float64{5, 5, 5}))
}

func TestModes(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		k        int
		expected []float64
	}{
		{name: "empty", values: nil, k: 3, expected: nil},
		{name: "frequency order", values: []float64{30, 30, 30, 10, 10, 60}, k: 3, expected: []float64{30, 10, 60}},
		{name: "ties by value", values: []float64{5, 3, 9}, k: 2, expected: []float64{3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Modes(tt.values, tt.k))
		})
	}
}

func TestWinsorize(t *testing.T) {
	values := []float64{10, 11, 12, 10, 11, 12, 10, 11, 500}
	out, clipped := Winsorize(values)
	assert.Equal(t, 1, clipped)
	_, high := IQRBounds(values)
	assert.InDelta(t, high, out[8], 1e-9)
	assert.Equal(t, 500.0, values[8], "input is untouched")
}

func TestIntervalZ(t *testing.T) {
	tests := []struct {
		level    float64
		expected float64
	}{
		{level: 0.8, expected: 1.2816},
		{level: 0.9, expected: 1.6449},
		{level: 0.95, expected: 1.9600},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, IntervalZ(tt.level), 1e-3)
	}
	assert.True(t, math.IsInf(Erfinv(1), 1))
	assert.InDelta(t, 0, Erfinv(0), 1e-12)
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside", 0.25, 0.25},
		{"below", -3, 0},
		{"above", 7, 1},
		{"positive infinity", math.Inf(1), 1},
		{"negative infinity", math.Inf(-1), 0},
		{"NaN", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp01(tt.in))
		})
	}
}

func TestLinearFit(t *testing.T) {
	intercept, slope := LinearFit([]float64{1, 3, 5, 7})
	assert.InDelta(t, 1, intercept, 1e-9)
	assert.InDelta(t, 2, slope, 1e-9)

	intercept, slope = LinearFit([]float64{4})
	assert.Equal(t, 4.0, intercept)
	assert.Equal(t, 0.0, slope)
}

func TestFitBoosterSquaredLossLearnsStep(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := range 40 {
		v := float64(i)
		x = append(x, []float64{v})
		if i < 20 {
			y = append(y, 10)
		} else {
			y = append(y, 50)
		}
	}

	b, err := FitBooster(x, y, DefaultBoostParams())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Features())
	assert.InDelta(t, 10, b.Predict([]float64{5}), 1.0)
	assert.InDelta(t, 50, b.Predict([]float64{35}), 1.0)
}

func TestFitBoosterLogLossSeparatesClasses(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := range 30 {
		x = append(x, []float64{float64(i % 2), float64(i)})
		y = append(y, float64(i%2))
	}

	params := DefaultBoostParams()
	params.Loss = LogLoss
	params.Trees = 50
	b, err := FitBooster(x, y, params)
	require.NoError(t, err)

	pos := b.Predict([]float64{1, 7})
	neg := b.Predict([]float64{0, 8})
	assert.Greater(t, pos, 0.8)
	assert.Less(t, neg, 0.2)
	assert.True(t, pos >= 0 && pos <= 1)
}

func TestFitBoosterConstantTarget(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{7, 7, 7, 7}
	b, err := FitBooster(x, y, DefaultBoostParams())
	require.NoError(t, err)
	assert.InDelta(t, 7, b.Predict([]float64{10}), 1e-9)
}

func TestFitBoosterInvalidInput(t *testing.T) {
	_, err := FitBooster(nil, nil, DefaultBoostParams())
	assert.Error(t, err)

	_, err = FitBooster([][]float64{{1}, {1, 2}}, []float64{1, 2}, DefaultBoostParams())
	assert.Error(t, err)

	params := DefaultBoostParams()
	params.Trees = 0
	_, err = FitBooster([][]float64{{1}}, []float64{1}, params)
	assert.Error(t, err)
}

func TestRankChurnScores(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	scores := []schema.ChurnScore{
		{SubscriberID: "a", AsOf: asOf, Risk: 0.2},
		{SubscriberID: "b", AsOf: asOf, Risk: 0.9},
		{SubscriberID: "c", AsOf: asOf, Risk: 0.5},
	}

	ranked := RankChurnScores(scores, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].SubscriberID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "c", ranked[1].SubscriberID)

	assert.Len(t, RankChurnScores(scores, 0), 3)
}

func TestRankSeries(t *testing.T) {
	mk := func(key string, values ...float64) schema.MetricSeries {
		s := schema.MetricSeries{Metric: schema.SignupsMetric, DimensionKey: key}
		for i, v := range values {
			s.Points = append(s.Points, schema.SeriesPoint{Period: time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), Value: v})
		}
		return s
	}
	series := []schema.MetricSeries{mk("package=A", 1, 1), mk("package=B", 5, 5), mk("package=C", 1, 1)}

	ranked := RankSeries(series, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "package=B", ranked[0].DimensionKey)
	assert.Equal(t, "package=A", ranked[1].DimensionKey)
}

func BenchmarkFitBooster(b *testing.B) {
	var x [][]float64
	var y []float64
	for i := range 200 {
		x = append(x, []float64{float64(i), float64(i % 12)})
		y = append(y, float64(i%12)*3+float64(i)*0.1)
	}
	for b.Loop() {
		_, _ = FitBooster(x, y, DefaultBoostParams())
	}
}
