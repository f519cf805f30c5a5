package features

import (
	"time"

	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
)

// Calendar is a fixed set of holiday dates.
type Calendar struct {
	days map[time.Time]struct{}
}

var _ contract.HolidayCalendar = (*Calendar)(nil)

// NewCalendar returns a calendar holding the given days. Times are truncated to UTC dates.
func NewCalendar(days []time.Time) *Calendar {
	c := &Calendar{days: make(map[time.Time]struct{}, len(days))}
	for _, d := range days {
		c.days[schema.TruncatePeriod(d, schema.DayGranularity)] = struct{}{}
	}
	return c
}

// IsHoliday reports whether the date of day is a holiday.
func (c *Calendar) IsHoliday(day time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.days[schema.TruncatePeriod(day, schema.DayGranularity)]
	return ok
}

// Len returns the number of holidays.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}

// HolidayFlag is 1 when the period contains at least one holiday.
func HolidayFlag(cal contract.HolidayCalendar, period time.Time, g schema.Granularity) float64 {
	if cal == nil {
		return 0
	}
	end := schema.NextPeriod(period, g)
	for day := period; day.Before(end); day = day.AddDate(0, 0, 1) {
		if cal.IsHoliday(day) {
			return 1
		}
	}
	return 0
}
