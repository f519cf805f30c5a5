package schema

import "time"

// RunRecord represents a row from the subpulse_forecast_runs table.
type RunRecord struct {
	RunID          int64
	StartTime      time.Time
	EndTime        *time.Time
	RunDurationMs  *int32
	TotalForecasts int32
	ConfigParams   *string
}

// ForecastPointRecord represents a row from the subpulse_forecast_points table.
type ForecastPointRecord struct {
	RunID        int64
	Metric       string
	DimensionKey string
	Period       time.Time
	Point        float64
	Lower        *float64
	Upper        *float64
	Model        string
}

// EventSnapshot is the normalized event set persisted by the event cache.
type EventSnapshot struct {
	Range     DateRange           `json:"range"`
	FetchedAt time.Time           `json:"fetched_at"`
	Events    []SubscriptionEvent `json:"events"`
	Report    NormalizeReport     `json:"report"`
}
