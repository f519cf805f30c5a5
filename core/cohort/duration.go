package cohort

import (
	"math"
	"sort"
	"time"

	"github.com/huangsam/subpulse/core/algo"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// DurationThresholds are the survival checkpoints in days.
var DurationThresholds = []int{0, 10, 30, 60, 365}

const topModes = 3

// Durations measures each subscriber's first active span in days. Subscribers still
// active at observedEnd yield a censored point measured up to observedEnd.
func Durations(subs []schema.Subscriber, observedEnd time.Time) []schema.DurationPoint {
	points := make([]schema.DurationPoint, 0, len(subs))
	for _, s := range subs {
		if len(s.Spans) == 0 {
			continue
		}
		span := s.Spans[0]
		end, censored := span.CancelledAt, false
		if span.OpenEnded || end.IsZero() || end.After(observedEnd) {
			end, censored = observedEnd, true
		}
		points = append(points, schema.DurationPoint{
			SubscriberID: s.ID,
			Days:         contract.CalculateDays(span.StartedAt, end),
			Censored:     censored,
		})
	}
	return points
}

// SummarizeDurations counts survivors at each threshold, describes completed durations
// and estimates a Kaplan-Meier survival curve. Censored points count as surviving up
// to their censoring time and leave the risk set after it.
func SummarizeDurations(points []schema.DurationPoint) schema.DurationSummary {
	summary := schema.DurationSummary{Total: len(points)}
	summary.Censored = lo.CountBy(points, func(p schema.DurationPoint) bool { return p.Censored })

	for _, d := range DurationThresholds {
		surviving := lo.CountBy(points, func(p schema.DurationPoint) bool { return p.Days >= float64(d) })
		summary.Buckets = append(summary.Buckets, schema.DurationBucket{Days: d, Surviving: surviving})
	}

	completed := lo.FilterMap(points, func(p schema.DurationPoint, _ int) (float64, bool) {
		return p.Days, !p.Censored
	})
	summary.Completed = Describe(completed)
	summary.Survival = KaplanMeier(points)
	return summary
}

// KaplanMeier returns one survival step per distinct completed duration.
func KaplanMeier(points []schema.DurationPoint) []schema.SurvivalPoint {
	sorted := append([]schema.DurationPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Days < sorted[j].Days })

	var curve []schema.SurvivalPoint
	survival := 1.0
	atRisk := len(sorted)
	for i := 0; i < len(sorted); {
		t := sorted[i].Days
		events, leaving := 0, 0
		for ; i < len(sorted) && sorted[i].Days == t; i++ {
			if !sorted[i].Censored {
				events++
			}
			leaving++
		}
		if events > 0 {
			survival *= 1 - float64(events)/float64(atRisk)
			curve = append(curve, schema.SurvivalPoint{Days: t, AtRisk: atRisk, Events: events, Survival: survival})
		}
		atRisk -= leaving
	}
	return curve
}

// ConversionTimes measures the days between a trial or lead signal and the first paid
// subscription, clipped at zero.
func ConversionTimes(subs []schema.Subscriber) schema.ConversionSummary {
	var summary schema.ConversionSummary
	for _, s := range subs {
		if s.Origin == nil {
			continue
		}
		summary.Points = append(summary.Points, schema.ConversionPoint{
			SubscriberID: s.ID,
			Origin:       s.Origin.Kind,
			Days:         contract.CalculateDays(s.Origin.At, s.FirstPaidAt),
		})
	}
	days := func(p schema.ConversionPoint, _ int) float64 { return p.Days }
	summary.Stats = Describe(lo.Map(summary.Points, days))
	for origin, points := range lo.GroupBy(summary.Points, func(p schema.ConversionPoint) string { return p.Origin }) {
		if summary.ByOrigin == nil {
			summary.ByOrigin = map[string]schema.DistributionStats{}
		}
		summary.ByOrigin[origin] = Describe(lo.Map(points, days))
	}
	return summary
}

// Describe summarizes day counts. Modes are taken over whole days.
func Describe(days []float64) schema.DistributionStats {
	if len(days) == 0 {
		return schema.DistributionStats{}
	}
	whole := lo.Map(days, func(d float64, _ int) float64 { return math.Floor(d) })
	return schema.DistributionStats{
		Count:  len(days),
		Mean:   algo.Mean(days),
		Median: algo.Median(days),
		P25:    algo.Quantile(days, 0.25),
		P75:    algo.Quantile(days, 0.75),
		Modes:  algo.Modes(whole, topModes),
	}
}
