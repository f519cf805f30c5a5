package forecast

import (
	"context"
	"math"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/core/features"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// minTrainingRows is the smallest feature set a booster is fitted on.
const minTrainingRows = 4

// GBRT forecasts with gradient-boosted regression trees over lag, rolling, calendar
// and dimension features.
type GBRT struct {
	cfg    schema.ModelConfig
	deps   Deps
	params algo.BoostParams

	series  schema.MetricSeries
	builder *features.Builder
	booster *algo.Booster
	sigma   float64
}

// NewGBRT returns an unfitted boosted-tree model.
func NewGBRT(cfg schema.ModelConfig, deps Deps) *GBRT {
	params := algo.DefaultBoostParams()
	if cfg.Trees > 0 {
		params.Trees = cfg.Trees
	}
	if cfg.Depth > 0 {
		params.Depth = cfg.Depth
	}
	if cfg.LearningRate > 0 {
		params.LearningRate = cfg.LearningRate
	}
	if cfg.Lambda > 0 {
		params.Lambda = cfg.Lambda
	}
	return &GBRT{cfg: cfg, deps: deps, params: params}
}

// Name implements Model.
func (m *GBRT) Name() schema.ModelName { return schema.GBRTModel }

// Fallback trades fit for stability: ten times the regularization, half the
// learning rate and shallower trees.
func (m *GBRT) Fallback() Model {
	params := m.params
	params.Lambda *= 10
	params.LearningRate /= 2
	params.Depth = max(1, params.Depth-1)
	return &GBRT{cfg: m.cfg, deps: m.deps, params: params}
}

// Fit builds the training rows and fits the booster.
func (m *GBRT) Fit(ctx context.Context, series schema.MetricSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.series = series
	m.builder = features.NewBuilder(series, features.Options{
		Lags:             m.cfg.Lags,
		Windows:          m.cfg.Windows,
		Calendar:         m.deps.Calendar,
		Encoding:         m.cfg.Encoding,
		AllowMissingLags: m.cfg.AllowMissingLags,
		Vocabulary:       m.deps.Vocabulary,
	}, m.deps.Aux...)

	set := m.builder.Build(series)
	if len(set.Rows) < minTrainingRows {
		need := minTrainingRows
		if !m.cfg.AllowMissingLags {
			need += m.builder.MaxLookback()
		}
		return contract.NewInsufficientHistoryError(string(schema.GBRTModel), len(series.Points), need)
	}

	x, y := set.Matrix()
	booster, err := algo.FitBooster(x, y, m.params)
	if err != nil {
		return contract.NewModelFitError(string(schema.GBRTModel), err)
	}
	m.booster = booster

	residuals := make([]float64, len(y))
	for i, row := range x {
		residuals[i] = y[i] - booster.Predict(row)
	}
	m.sigma = algo.StdDev(residuals)
	if !algo.Finite(m.sigma) {
		return contract.NewModelFitError(string(schema.GBRTModel), nil)
	}
	return nil
}

// Predict runs the recursive loop: each forecast is appended to the history before the
// next row is built, so errors compound with the horizon. Bounds are only produced
// with residual intervals enabled and widen with the square root of the step.
func (m *GBRT) Predict(ctx context.Context, horizon int) ([]Prediction, error) {
	if m.booster == nil {
		return nil, contract.NewModelFitError(string(schema.GBRTModel), nil)
	}
	history := m.series.Values()
	n := len(history)
	last := m.series.Points[n-1].Period
	z := algo.IntervalZ(m.cfg.IntervalLevel)

	out := make([]Prediction, 0, horizon)
	for h := 1; h <= horizon; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		period := schema.AddPeriods(last, h, m.series.Granularity)
		row := m.builder.NextRow(history, period, n-1+h)
		value := m.booster.Predict(row.Values)
		if !algo.Finite(value) {
			return nil, contract.NewModelFitError(string(schema.GBRTModel), nil)
		}
		p := Prediction{Period: period, Value: value}
		if m.cfg.ResidualIntervals && algo.Finite(z) {
			width := z * m.sigma * math.Sqrt(float64(h))
			p.Lower, p.Upper = bound(value-width), bound(value+width)
		}
		out = append(out, p)
		history = append(history, value)
	}
	return out, nil
}
