package schema

import (
	"fmt"
	"time"
)

// DateRange is a half-open time interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange returns the range [start, end) in UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: start.UTC(), End: end.UTC()}
}

// PeriodRange returns the range covering periods first through last inclusive.
func PeriodRange(first, last time.Time, g Granularity) DateRange {
	return DateRange{Start: TruncatePeriod(first, g), End: NextPeriod(TruncatePeriod(last, g), g)}
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Intersects reports whether two ranges share any instant.
func (r DateRange) Intersects(o DateRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// String renders the range for cache keys and logs.
func (r DateRange) String() string {
	return fmt.Sprintf("%s/%s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// TruncatePeriod returns the start of the period containing t.
func TruncatePeriod(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	if g == DayGranularity {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextPeriod returns the start of the period following p.
func NextPeriod(p time.Time, g Granularity) time.Time {
	return AddPeriods(p, 1, g)
}

// AddPeriods shifts a period start by n periods.
func AddPeriods(p time.Time, n int, g Granularity) time.Time {
	if g == DayGranularity {
		return p.AddDate(0, 0, n)
	}
	return p.AddDate(0, n, 0)
}

// PeriodsBetween returns the number of whole periods from a to b, both period starts.
func PeriodsBetween(a, b time.Time, g Granularity) int {
	if g == DayGranularity {
		return int(b.Sub(a).Hours() / 24)
	}
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// PeriodGrid lists every period start in the range.
func PeriodGrid(r DateRange, g Granularity) []time.Time {
	var grid []time.Time
	for p := TruncatePeriod(r.Start, g); p.Before(r.End); p = NextPeriod(p, g) {
		grid = append(grid, p)
	}
	return grid
}

// FormatPeriod renders a period start for display.
func FormatPeriod(p time.Time, g Granularity) string {
	if g == DayGranularity {
		return p.Format(time.DateOnly)
	}
	return p.Format("2006-01")
}

// ParsePeriod parses "2006-01" or "2006-01-02" into a period start.
func ParsePeriod(s string, g Granularity) (time.Time, error) {
	for _, layout := range []string{"2006-01", time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncatePeriod(t, g), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid period '%s'. expected YYYY-MM or YYYY-MM-DD", s)
}

// DefaultSeasonLength is the number of periods in one seasonal cycle.
func DefaultSeasonLength(g Granularity) int {
	if g == DayGranularity {
		return 7
	}
	return 12
}
