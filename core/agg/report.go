package agg

import (
	"sort"
	"time"

	"github.com/huangsam/subpulse/schema"
)

// volumeGroup collects the daily values and paid counts of one report row.
type volumeGroup struct {
	daily  map[time.Time]float64
	paid   int
	events int
}

func newVolumeGroup() *volumeGroup {
	return &volumeGroup{daily: map[time.Time]float64{}}
}

// VolumeReports summarizes daily volume inside q.Range, one row per calendar month
// touched by the range or one row per location with events in it. Revenue sums the
// amounts of the selected paid events; an empty event type selects every type.
// Active days are days with a positive value.
func VolumeReports(events []schema.SubscriptionEvent, q schema.VolumeQuery) []schema.VolumeReport {
	if q.Value == "" {
		q.Value = schema.CountVolume
	}
	if q.GroupBy == "" {
		q.GroupBy = schema.MonthGrouping
	}

	groups := map[string]*volumeGroup{}
	groupOf := func(e schema.SubscriptionEvent) *volumeGroup {
		name := e.Location
		if q.GroupBy == schema.MonthGrouping {
			name = schema.FormatPeriod(schema.TruncatePeriod(e.Timestamp, schema.MonthGranularity), schema.MonthGranularity)
		}
		g, ok := groups[name]
		if !ok {
			g = newVolumeGroup()
			groups[name] = g
		}
		return g
	}

	for _, e := range events {
		if !q.Range.Contains(e.Timestamp) {
			continue
		}
		g := groupOf(e)
		g.events++
		if e.Type.IsPaid() && e.Amount.IsPositive() {
			g.paid++
		}
		if q.EventType != "" && e.Type != q.EventType {
			continue
		}
		v := 1.0
		if q.Value == schema.RevenueVolume {
			if !e.Type.IsPaid() {
				continue
			}
			v = e.Amount.InexactFloat64()
		}
		g.daily[schema.TruncatePeriod(e.Timestamp, schema.DayGranularity)] += v
	}

	label := string(q.EventType)
	if label == "" {
		label = "all"
	}

	var reports []schema.VolumeReport
	if q.GroupBy == schema.MonthGrouping {
		for _, month := range schema.PeriodGrid(q.Range, schema.MonthGranularity) {
			g, ok := groups[schema.FormatPeriod(month, schema.MonthGranularity)]
			if !ok {
				g = newVolumeGroup()
			}
			next := schema.NextPeriod(month, schema.MonthGranularity)
			report := summarizeVolume(g, schema.PeriodsBetween(month, next, schema.DayGranularity))
			report.Month = month
			reports = append(reports, report)
		}
	} else {
		days := schema.PeriodsBetween(q.Range.Start, q.Range.End, schema.DayGranularity)
		for name, g := range groups {
			report := summarizeVolume(g, days)
			report.Location = name
			reports = append(reports, report)
		}
		sort.Slice(reports, func(i, j int) bool { return reports[i].Location < reports[j].Location })
	}
	for i := range reports {
		reports[i].EventType = label
		reports[i].Value = q.Value
	}
	return reports
}

// summarizeVolume averages a group's daily values over a period of days.
func summarizeVolume(g *volumeGroup, days int) schema.VolumeReport {
	report := schema.VolumeReport{Paid: g.paid, Events: g.events}
	dayKeys := make([]time.Time, 0, len(g.daily))
	for day, v := range g.daily {
		if v > 0 {
			dayKeys = append(dayKeys, day)
		}
	}
	sort.Slice(dayKeys, func(i, j int) bool { return dayKeys[i].Before(dayKeys[j]) })

	for _, day := range dayKeys {
		v := g.daily[day]
		report.Total += v
		report.ActiveDays++
		if report.BestDay == nil || v > report.BestDay.Value {
			report.BestDay = &schema.DayVolume{Day: day, Value: v}
		}
		if report.WorstDay == nil || v < report.WorstDay.Value {
			report.WorstDay = &schema.DayVolume{Day: day, Value: v}
		}
	}
	if days > 0 {
		report.AvgPerDay = report.Total / float64(days)
	}
	if report.ActiveDays > 0 {
		report.AvgPerActiveDay = report.Total / float64(report.ActiveDays)
	}
	if report.Events > 0 {
		report.PaidPercent = float64(report.Paid) / float64(report.Events) * 100
	}
	return report
}
