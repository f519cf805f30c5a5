// Package forecast fits forecasting models to metric series and reconciles their outputs.
package forecast

import (
	"context"
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// Prediction is one model's output for a future period.
type Prediction struct {
	Period time.Time
	Value  float64
	Lower  *float64
	Upper  *float64
}

// Model is a forecasting model. Fit must be called before Predict.
type Model interface {
	Name() schema.ModelName
	Fit(ctx context.Context, series schema.MetricSeries) error
	Predict(ctx context.Context, horizon int) ([]Prediction, error)
}

// Regularized is implemented by models that can retry a failed fit with a more
// conservative configuration.
type Regularized interface {
	Fallback() Model
}

// Deps are the request-scoped inputs shared by all models of one forecast.
type Deps struct {
	Calendar   contract.HolidayCalendar
	Vocabulary map[schema.Dimension][]string
	Aux        []schema.MetricSeries
}

// Factory builds a model from the configuration.
type Factory func(cfg schema.ModelConfig, deps Deps) Model

var registry = map[schema.ModelName]Factory{
	schema.SeasonalModel: func(cfg schema.ModelConfig, deps Deps) Model { return NewSeasonal(cfg, deps.Calendar) },
	schema.GBRTModel:     func(cfg schema.ModelConfig, deps Deps) Model { return NewGBRT(cfg, deps) },
}

func bound(v float64) *float64 {
	return &v
}
