// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/subpulse/schema"
)

// EventSource fetches raw subscription events for a time range.
// Transient failures are returned unchanged so callers can retry.
type EventSource interface {
	FetchEvents(ctx context.Context, r schema.DateRange) ([]schema.RawEvent, error)
}

// HolidayCalendar reports whether a day is a holiday.
type HolidayCalendar interface {
	IsHoliday(day time.Time) bool
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetEventStore() CacheStore
	GetRunStore() RunStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking forecast runs and their points.
type RunStore interface {
	// BeginRun creates a new forecast run and returns its unique ID
	BeginRun(startTime time.Time, configParams map[string]any) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, totalForecasts int) error

	// RecordForecast stores every point of a forecast result
	RecordForecast(runID int64, result schema.ForecastResult) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	// GetAllRuns returns every recorded run
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllForecastPoints returns every recorded forecast point
	GetAllForecastPoints() ([]schema.ForecastPointRecord, error)

	// Close closes the underlying connection
	Close() error
}
