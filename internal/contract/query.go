package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/huangsam/subpulse/schema"
)

// QueryRange parses optional start and end inputs of a server request.
// Missing bounds fall back to the configured window.
func (c *Config) QueryRange(start, end string, now time.Time) (schema.DateRange, error) {
	from, to := c.StartTime, c.EndTime
	if start != "" {
		t, err := ParseTimeInput(start, now)
		if err != nil {
			return schema.DateRange{}, fmt.Errorf("invalid start: %w", err)
		}
		from = t
	}
	if end != "" {
		t, err := ParseTimeInput(end, now)
		if err != nil {
			return schema.DateRange{}, fmt.Errorf("invalid end: %w", err)
		}
		to = t
	}
	if !from.Before(to) {
		return schema.DateRange{}, fmt.Errorf("start (%s) must be before end (%s)", from.Format(DateTimeFormat), to.Format(DateTimeFormat))
	}
	return schema.NewDateRange(from, to), nil
}

// QueryGranularity parses an optional granularity, defaulting to the configured one.
func (c *Config) QueryGranularity(s string) (schema.Granularity, error) {
	if s == "" {
		return c.Granularity, nil
	}
	g := schema.Granularity(strings.ToLower(s))
	if _, ok := schema.ValidGranularities[g]; !ok {
		return "", fmt.Errorf("invalid granularity '%s'. must be day, month", s)
	}
	return g, nil
}

// QueryMetric parses an optional metric name, defaulting to the configured one.
func (c *Config) QueryMetric(s string) (schema.MetricName, error) {
	if s == "" {
		return c.Metric, nil
	}
	m := schema.MetricName(strings.ToLower(s))
	if _, ok := schema.ValidMetrics[m]; !ok {
		return "", fmt.Errorf("invalid metric '%s'", s)
	}
	return m, nil
}

// QueryHorizon defaults a non-positive horizon to the configured one.
func (c *Config) QueryHorizon(h int) (int, error) {
	if h == 0 {
		return c.Horizon, nil
	}
	if h < 0 || h > MaxHorizon {
		return 0, fmt.Errorf("horizon must be between 1 and %d (received %d)", MaxHorizon, h)
	}
	return h, nil
}
