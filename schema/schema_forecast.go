package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ModelEstimate is one sub-model's output for a forecast period.
type ModelEstimate struct {
	Model ModelName `json:"model"`
	Value float64   `json:"value"`
	Lower *float64  `json:"lower,omitempty"`
	Upper *float64  `json:"upper,omitempty"`
}

// ForecastPoint is a forecast for one future period.
// Lower <= Point <= Upper whenever bounds are present.
type ForecastPoint struct {
	Period    time.Time       `json:"period"`
	Point     float64         `json:"point"`
	Lower     *float64        `json:"lower,omitempty"`
	Upper     *float64        `json:"upper,omitempty"`
	Model     string          `json:"model"`
	Estimates []ModelEstimate `json:"estimates,omitempty"`
}

// ForecastResult holds the reconciled forecast of one series.
type ForecastResult struct {
	Metric       MetricName      `json:"metric"`
	DimensionKey string          `json:"dimension_key"`
	Granularity  Granularity     `json:"granularity"`
	Horizon      int             `json:"horizon"`
	Combiner     CombinerName    `json:"combiner"`
	Models       []ModelName     `json:"models"`
	Points       []ForecastPoint `json:"points"`
}

// Total returns the sum of forecast points.
func (r ForecastResult) Total() float64 {
	var total float64
	for _, p := range r.Points {
		total += p.Point
	}
	return total
}

// ModelConfig selects and tunes the forecasting models.
type ModelConfig struct {
	Models            []ModelName  `json:"models"`
	Combiner          CombinerName `json:"combiner"`
	SeasonLength      int          `json:"season_length"`
	IntervalLevel     float64      `json:"interval_level"`
	Lags              []int        `json:"lags"`
	Windows           []int        `json:"windows"`
	Trees             int          `json:"trees"`
	Depth             int          `json:"depth"`
	LearningRate      float64      `json:"learning_rate"`
	Lambda            float64      `json:"lambda"`
	ResidualIntervals bool         `json:"residual_intervals"`
	RemoveOutliers    bool         `json:"remove_outliers"`
	AllowMissingLags  bool         `json:"allow_missing_lags"`
	Encoding          EncodingMode `json:"encoding"`
	Holidays          []time.Time  `json:"holidays,omitempty"`
}

// DefaultModelConfig returns the configuration used when nothing is specified.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Models:         []ModelName{SeasonalModel, GBRTModel},
		Combiner:       MeanCombiner,
		IntervalLevel:  0.8,
		Trees:          200,
		Depth:          3,
		LearningRate:   0.1,
		Lambda:         1.0,
		RemoveOutliers: true,
		Encoding:       OneHotEncoding,
	}
}

// Hash returns a stable digest of the configuration, used in cache keys.
func (c ModelConfig) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// BatchForecast is the outcome of forecasting one (metric, dimension) pair in a batch.
type BatchForecast struct {
	Metric       MetricName      `json:"metric"`
	DimensionKey string          `json:"dimension_key"`
	Result       *ForecastResult `json:"result,omitempty"`
	Err          string          `json:"error,omitempty"`
	Cause        error           `json:"-"`
}

// RevenueBreakdown is the revenue forecast split by subscription type and summed.
type RevenueBreakdown struct {
	ByType map[EventType]ForecastResult `json:"by_type"`
	Total  []ForecastPoint              `json:"total"`
}

// GrowthSummary compares forecast inflow (signups, renewals and upgrades) with
// forecast cancellations over a horizon. Predictions are whole, non-negative events.
type GrowthSummary struct {
	Horizon         int             `json:"horizon"`
	Inflow          []ForecastPoint `json:"inflow"`
	Churn           []ForecastPoint `json:"churn"`
	TotalInflow     float64         `json:"total_inflow"`
	TotalChurn      float64         `json:"total_churn"`
	AvgChurn        float64         `json:"avg_churn"`
	PeakChurn       float64         `json:"peak_churn"`
	PeakChurnPeriod time.Time       `json:"peak_churn_period"`
	NetGrowth       float64         `json:"net_growth"`
}
