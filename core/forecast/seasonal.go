package forecast

import (
	"context"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/core/features"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// Seasonal is a classical additive decomposition: centered moving-average trend,
// normalized seasonal indices and a least-squares trend line for extrapolation.
type Seasonal struct {
	season   int
	level    float64
	flat     bool
	calendar contract.HolidayCalendar

	series    schema.MetricSeries
	intercept float64
	slope     float64
	indices   []float64
	holiday   float64
	sigma     float64
}

// NewSeasonal returns an unfitted seasonal model.
func NewSeasonal(cfg schema.ModelConfig, cal contract.HolidayCalendar) *Seasonal {
	return &Seasonal{season: cfg.SeasonLength, level: cfg.IntervalLevel, calendar: cal}
}

// Name implements Model.
func (s *Seasonal) Name() schema.ModelName { return schema.SeasonalModel }

// Fallback drops the trend slope.
func (s *Seasonal) Fallback() Model {
	return &Seasonal{season: s.season, level: s.level, calendar: s.calendar, flat: true}
}

// Fit needs at least two full seasonal cycles.
func (s *Seasonal) Fit(ctx context.Context, series schema.MetricSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := s.season
	if m <= 0 {
		m = schema.DefaultSeasonLength(series.Granularity)
	}
	s.season = m
	if s.level <= 0 || s.level >= 1 {
		s.level = contract.DefaultIntervalLevel
	}

	y := series.Values()
	n := len(y)
	if n < 2*m {
		return contract.NewInsufficientHistoryError(string(schema.SeasonalModel), n, 2*m)
	}
	s.series = series

	trend := centeredMovingAverage(y, m)
	sums := make([]float64, m)
	counts := make([]int, m)
	for i, t := range trend {
		if t == nil {
			continue
		}
		sums[i%m] += y[i] - *t
		counts[i%m]++
	}
	s.indices = make([]float64, m)
	for k := range m {
		if counts[k] > 0 {
			s.indices[k] = sums[k] / float64(counts[k])
		}
	}
	meanIndex := algo.Mean(s.indices)
	for k := range s.indices {
		s.indices[k] -= meanIndex
	}

	adjusted := make([]float64, n)
	for i, v := range y {
		adjusted[i] = v - s.indices[i%m]
	}
	if s.flat {
		s.intercept, s.slope = algo.Mean(adjusted), 0
	} else {
		s.intercept, s.slope = algo.LinearFit(adjusted)
	}

	residuals := make([]float64, n)
	for i := range y {
		residuals[i] = y[i] - s.baseline(i)
	}
	s.fitHoliday(residuals)
	for i, p := range series.Points {
		residuals[i] -= s.holiday * features.HolidayFlag(s.calendar, p.Period, series.Granularity)
	}
	s.sigma = algo.StdDev(residuals)

	if !algo.Finite(s.intercept, s.slope, s.sigma, s.holiday) || !algo.Finite(s.indices...) {
		return contract.NewModelFitError(string(schema.SeasonalModel), nil)
	}
	return nil
}

// fitHoliday estimates the mean residual of holiday periods over ordinary periods.
func (s *Seasonal) fitHoliday(residuals []float64) {
	s.holiday = 0
	if s.calendar == nil {
		return
	}
	var on, off []float64
	for i, p := range s.series.Points {
		if features.HolidayFlag(s.calendar, p.Period, s.series.Granularity) > 0 {
			on = append(on, residuals[i])
		} else {
			off = append(off, residuals[i])
		}
	}
	if len(on) == 0 || len(off) == 0 {
		return
	}
	s.holiday = algo.Mean(on) - algo.Mean(off)
}

func (s *Seasonal) baseline(i int) float64 {
	return s.intercept + s.slope*float64(i) + s.indices[i%s.season]
}

// Predict extrapolates the trend line and repeats the seasonal indices. Bounds are
// symmetric at z times the residual standard deviation.
func (s *Seasonal) Predict(ctx context.Context, horizon int) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(s.series.Points)
	if n == 0 {
		return nil, contract.NewModelFitError(string(schema.SeasonalModel), nil)
	}
	last := s.series.Points[n-1].Period
	z := algo.IntervalZ(s.level)

	out := make([]Prediction, 0, horizon)
	for h := 1; h <= horizon; h++ {
		period := schema.AddPeriods(last, h, s.series.Granularity)
		value := s.baseline(n-1+h) + s.holiday*features.HolidayFlag(s.calendar, period, s.series.Granularity)
		width := z * s.sigma
		if !algo.Finite(value, width) {
			return nil, contract.NewModelFitError(string(schema.SeasonalModel), nil)
		}
		out = append(out, Prediction{Period: period, Value: value, Lower: bound(value - width), Upper: bound(value + width)})
	}
	return out, nil
}

// centeredMovingAverage returns the trend at each index, nil near the edges.
// Even windows use the 2xm average.
func centeredMovingAverage(y []float64, m int) []*float64 {
	out := make([]*float64, len(y))
	half := m / 2
	for i := half; i < len(y)-half; i++ {
		var v float64
		if m%2 == 1 {
			v = algo.Mean(y[i-half : i+half+1])
		} else {
			sum := 0.5*y[i-half] + 0.5*y[i+half]
			for j := i - half + 1; j < i+half; j++ {
				sum += y[j]
			}
			v = sum / float64(m)
		}
		out[i] = &v
	}
	return out
}
