package forecast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/core/features"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// outlierMinPoints is the series length above which training data is winsorized.
const outlierMinPoints = 20

// Engine fits the configured models in parallel and reconciles their outputs.
type Engine struct {
	cfg      schema.ModelConfig
	combiner Combiner
	calendar contract.HolidayCalendar
}

// NewEngine validates the model configuration and returns an engine for it.
func NewEngine(cfg schema.ModelConfig) (*Engine, error) {
	if len(cfg.Models) == 0 {
		cfg.Models = schema.DefaultModelConfig().Models
	}
	for _, name := range cfg.Models {
		if _, ok := registry[name]; !ok {
			return nil, errors.Newf("unknown model %q", name)
		}
	}
	cfg.Models = lo.Uniq(cfg.Models)
	if cfg.IntervalLevel <= 0 || cfg.IntervalLevel >= 1 {
		cfg.IntervalLevel = contract.DefaultIntervalLevel
	}
	combiner, err := CombinerFor(cfg.Combiner)
	if err != nil {
		return nil, err
	}
	cfg.Combiner = combiner.Name()

	e := &Engine{cfg: cfg, combiner: combiner}
	if len(cfg.Holidays) > 0 {
		e.calendar = features.NewCalendar(cfg.Holidays)
	}
	return e, nil
}

// Config returns the normalized model configuration.
func (e *Engine) Config() schema.ModelConfig {
	return e.cfg
}

// Request is the input of one forecast.
type Request struct {
	Series     schema.MetricSeries
	Horizon    int
	Aux        []schema.MetricSeries         // optional auxiliary series for feature models
	Vocabulary map[schema.Dimension][]string // optional dimension vocabulary
}

type modelOutcome struct {
	name        schema.ModelName
	predictions []Prediction
	err         error
}

// Forecast fits every configured model on the series and reconciles the predictions.
// A model that still fails after its fallback aborts the whole result with that
// model's error; failures of earlier configured models take precedence.
func (e *Engine) Forecast(ctx context.Context, req Request) (schema.ForecastResult, error) {
	start := time.Now()
	defer func() { metrics.ComputationDuration.WithLabelValues("forecast").Observe(time.Since(start).Seconds()) }()

	if req.Horizon <= 0 {
		return schema.ForecastResult{}, errors.Newf("horizon must be positive, got %d", req.Horizon)
	}
	if len(req.Series.Points) == 0 {
		return schema.ForecastResult{}, contract.NewInsufficientHistoryError("forecast", 0, 1)
	}

	series := e.prepare(req.Series)
	deps := Deps{Calendar: e.calendar, Vocabulary: req.Vocabulary, Aux: req.Aux}

	outcomes := make([]modelOutcome, len(e.cfg.Models))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range e.cfg.Models {
		g.Go(func() error {
			preds, err := e.run(gctx, registry[name](e.cfg, deps), series, req.Horizon)
			outcomes[i] = modelOutcome{name: name, predictions: preds, err: err}
			if err != nil && ctx.Err() != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return schema.ForecastResult{}, err
	}

	var failed error
	for _, o := range outcomes {
		if o.err == nil {
			continue
		}
		metrics.ForecastFailuresTotal.WithLabelValues(string(o.name), failureClass(o.err)).Inc()
		logging.Ctx(ctx).Warn().Err(o.err).
			Str("model", string(o.name)).
			Str("metric", string(series.Metric)).
			Str("dimension", series.DimensionKey).
			Msg("model failed, forecast aborted")
		if failed == nil {
			failed = errors.Wrapf(o.err, "model %s", o.name)
		}
	}
	if failed != nil {
		return schema.ForecastResult{}, failed
	}

	result := schema.ForecastResult{
		Metric:       series.Metric,
		DimensionKey: series.DimensionKey,
		Granularity:  series.Granularity,
		Horizon:      req.Horizon,
		Combiner:     e.combiner.Name(),
		Models:       lo.Map(outcomes, func(o modelOutcome, _ int) schema.ModelName { return o.name }),
		Points:       e.reconcile(outcomes, req.Horizon),
	}
	return result, nil
}

// run fits and predicts one model, retrying a numeric failure once with the model's
// regularized fallback.
func (e *Engine) run(ctx context.Context, m Model, series schema.MetricSeries, horizon int) ([]Prediction, error) {
	preds, err := fitPredict(ctx, m, series, horizon)
	if err == nil || !errors.Is(err, contract.ErrModelFit) {
		return preds, err
	}
	r, ok := m.(Regularized)
	if !ok {
		return nil, err
	}
	logging.Ctx(ctx).Debug().Err(err).Str("model", string(m.Name())).Msg("retrying with fallback")
	return fitPredict(ctx, r.Fallback(), series, horizon)
}

func fitPredict(ctx context.Context, m Model, series schema.MetricSeries, horizon int) ([]Prediction, error) {
	if err := m.Fit(ctx, series); err != nil {
		return nil, err
	}
	return m.Predict(ctx, horizon)
}

// prepare winsorizes long training series onto the IQR fences.
func (e *Engine) prepare(series schema.MetricSeries) schema.MetricSeries {
	if !e.cfg.RemoveOutliers || len(series.Points) <= outlierMinPoints {
		return series
	}
	clipped, n := algo.Winsorize(series.Values())
	if n == 0 {
		return series
	}
	out := series
	out.Points = make([]schema.SeriesPoint, len(series.Points))
	for i, p := range series.Points {
		out.Points[i] = schema.SeriesPoint{Period: p.Period, Value: clipped[i]}
	}
	return out
}

// reconcile merges model outputs per period. A single model passes through; several
// are combined, with bounds from the models that produce them widened to contain the
// combined point. Points and bounds are clamped to non-negative values.
func (e *Engine) reconcile(outcomes []modelOutcome, horizon int) []schema.ForecastPoint {
	single := len(outcomes) == 1
	label := string(outcomes[0].name)
	if !single {
		names := lo.Map(outcomes, func(o modelOutcome, _ int) string { return string(o.name) })
		label = fmt.Sprintf("%s(%s)", e.combiner.Name(), strings.Join(names, ","))
	}

	points := make([]schema.ForecastPoint, horizon)
	for h := range horizon {
		fp := schema.ForecastPoint{Period: outcomes[0].predictions[h].Period, Model: label}
		values := make([]float64, 0, len(outcomes))
		for _, o := range outcomes {
			p := o.predictions[h]
			values = append(values, p.Value)
			fp.Estimates = append(fp.Estimates, schema.ModelEstimate{Model: o.name, Value: p.Value, Lower: p.Lower, Upper: p.Upper})
			if p.Lower != nil && p.Upper != nil {
				fp.Lower = minBound(fp.Lower, *p.Lower)
				fp.Upper = maxBound(fp.Upper, *p.Upper)
			}
		}
		if single {
			fp.Point = values[0]
			fp.Estimates = nil
		} else {
			fp.Point = e.combiner.Combine(values)
		}
		points[h] = clamp(fp)
	}
	return points
}

func clamp(fp schema.ForecastPoint) schema.ForecastPoint {
	fp.Point = max(0, fp.Point)
	if fp.Lower != nil && fp.Upper != nil {
		fp.Lower = bound(max(0, min(*fp.Lower, fp.Point)))
		fp.Upper = bound(max(*fp.Upper, fp.Point))
	}
	return fp
}

func minBound(cur *float64, v float64) *float64 {
	if cur == nil || v < *cur {
		return bound(v)
	}
	return cur
}

func maxBound(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return bound(v)
	}
	return cur
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, contract.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, contract.ErrModelFit):
		return "model_fit"
	default:
		return "other"
	}
}
