// Package cohort groups subscribers by first subscription and measures retention,
// subscription durations and time to first paid subscription.
package cohort

import (
	"sort"
	"time"

	"github.com/huangsam/subpulse/core/agg"
	"github.com/huangsam/subpulse/schema"
	"github.com/samber/lo"
)

// BuildSubscribers derives one subscriber per id from ordered canonical events.
// Subscribers without any activating event are skipped.
func BuildSubscribers(events []schema.SubscriptionEvent, g schema.Granularity) []schema.Subscriber {
	spans, _ := agg.Activity(events, g)
	bySubscriber := lo.GroupBy(events, func(e schema.SubscriptionEvent) string { return e.SubscriberID })

	ids := lo.Keys(bySubscriber)
	sort.Strings(ids)

	subs := make([]schema.Subscriber, 0, len(ids))
	for _, id := range ids {
		s, ok := buildSubscriber(id, bySubscriber[id], spans[id])
		if ok {
			subs = append(subs, s)
		}
	}
	return subs
}

func buildSubscriber(id string, events []schema.SubscriptionEvent, spans []schema.ActiveSpan) (schema.Subscriber, bool) {
	s := schema.Subscriber{ID: id, Spans: spans, Status: schema.CancelledStatus}
	for _, e := range events {
		if e.Origin != nil && s.Origin == nil {
			s.Origin = e.Origin
		}
		if e.Location != "" {
			s.Location = e.Location
		}
		if e.RecruitMode != "" {
			s.RecruitMode = e.RecruitMode
		}
		if e.Amount.IsPositive() {
			s.LastAmount = e.Amount
		}
		if !e.Type.IsActivating() {
			continue
		}
		s.LastType = e.Type
		if s.FirstEventAt.IsZero() {
			s.FirstEventAt = e.Timestamp
		}
		if s.FirstPaidAt.IsZero() && e.Amount.IsPositive() {
			s.FirstPaidAt = e.Timestamp
		}
		if s.CurrentTier() != e.PackageTier {
			s.PackageHistory = append(s.PackageHistory, schema.TierChange{At: e.Timestamp, Tier: e.PackageTier, Type: e.Type})
		}
	}
	if s.FirstEventAt.IsZero() {
		return s, false
	}
	if len(spans) > 0 && spans[len(spans)-1].OpenEnded {
		s.Status = schema.ActiveStatus
	}
	if s.FirstPaidAt.IsZero() {
		s.FirstPaidAt = s.FirstEventAt
	}
	return s, true
}

// BuildCohorts groups subscribers by the period of their first activating event.
// Cohorts are ordered by key and members by id.
func BuildCohorts(subs []schema.Subscriber, g schema.Granularity) []schema.Cohort {
	groups := lo.GroupBy(subs, func(s schema.Subscriber) time.Time {
		return schema.TruncatePeriod(s.FirstEventAt, g)
	})
	keys := lo.Keys(groups)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	cohorts := make([]schema.Cohort, 0, len(keys))
	for _, k := range keys {
		members := lo.Map(groups[k], func(s schema.Subscriber, _ int) string { return s.ID })
		sort.Strings(members)
		cohorts = append(cohorts, schema.Cohort{Key: k, Members: members, Size: len(members)})
	}
	return cohorts
}

// RetentionCurves computes one curve per cohort. A member is retained at age k when its
// first active span covers the period anchor+k. Ages run up to the last period that
// starts before observedEnd. The first age without survivors reads 0; later ages are nil.
func RetentionCurves(subs []schema.Subscriber, g schema.Granularity, observedEnd time.Time) []schema.RetentionCurve {
	byID := lo.KeyBy(subs, func(s schema.Subscriber) string { return s.ID })
	lastPeriod := schema.TruncatePeriod(observedEnd.Add(-time.Nanosecond), g)

	var curves []schema.RetentionCurve
	for _, c := range BuildCohorts(subs, g) {
		maxAge := schema.PeriodsBetween(c.Key, lastPeriod, g)
		if maxAge < 0 {
			continue
		}
		curve := schema.RetentionCurve{CohortKey: c.Key, Granularity: g, Size: c.Size}
		exhausted := false
		for age := 0; age <= maxAge; age++ {
			if exhausted {
				curve.Points = append(curve.Points, schema.RetentionPoint{Age: age})
				continue
			}
			period := schema.AddPeriods(c.Key, age, g)
			retained := lo.CountBy(c.Members, func(id string) bool {
				return firstSpanCovers(byID[id], period)
			})
			value := float64(retained) / float64(c.Size)
			curve.Points = append(curve.Points, schema.RetentionPoint{Age: age, Retained: &value})
			exhausted = retained == 0
		}
		curves = append(curves, curve)
	}
	return curves
}

// CurveFor returns the retention curve of the cohort starting at key.
func CurveFor(curves []schema.RetentionCurve, key time.Time) (schema.RetentionCurve, bool) {
	return lo.Find(curves, func(c schema.RetentionCurve) bool { return c.CohortKey.Equal(key) })
}

func firstSpanCovers(s schema.Subscriber, period time.Time) bool {
	if len(s.Spans) == 0 {
		return false
	}
	span := s.Spans[0]
	if period.Before(span.Start) {
		return false
	}
	return span.OpenEnded || period.Before(span.End)
}
