package churn

import (
	"fmt"
	"testing"
	"time"

	"github.com/huangsam/subpulse/core/cohort"
	"github.com/huangsam/subpulse/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

func signup(id, tier, location string, at time.Time) schema.SubscriptionEvent {
	return schema.SubscriptionEvent{SubscriberID: id, Type: schema.SignupEvent, Timestamp: at, PackageTier: tier, Location: location, Amount: decimal.NewFromInt(20)}
}

func cancel(id string, at time.Time) schema.SubscriptionEvent {
	return schema.SubscriptionEvent{SubscriberID: id, Type: schema.CancelEvent, Timestamp: at}
}

// population has basic-tier subscribers in FR who cancel and premium ones in DE who stay.
func population() []schema.Subscriber {
	var events []schema.SubscriptionEvent
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 20 {
		at := start.AddDate(0, 0, i)
		events = append(events, signup(fmt.Sprintf("basic-%02d", i), "basic", "FR", at))
		events = append(events, signup(fmt.Sprintf("premium-%02d", i), "premium", "DE", at))
	}
	for i := range 16 {
		events = append(events, cancel(fmt.Sprintf("basic-%02d", i), start.AddDate(0, 2, i)))
	}
	for i := range 2 {
		events = append(events, cancel(fmt.Sprintf("premium-%02d", i), start.AddDate(0, 3, i)))
	}
	sortEvents(events)
	return cohort.BuildSubscribers(events, schema.MonthGranularity)
}

func sortEvents(events []schema.SubscriptionEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Timestamp.Before(events[j-1].Timestamp); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func TestScoreRiskRangeAndActiveOnly(t *testing.T) {
	scores, err := Score(population(), asOf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, scores, 22, "4 basic and 18 premium subscribers are still active")

	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Risk, 0.0)
		assert.LessOrEqual(t, s.Risk, 1.0)
		assert.Equal(t, asOf, s.AsOf)
	}
	for i := 1; i < len(scores); i++ {
		assert.Less(t, scores[i-1].SubscriberID, scores[i].SubscriberID)
	}
}

func TestScoreSingleClassUsesBaseRate(t *testing.T) {
	events := []schema.SubscriptionEvent{
		signup("a", "basic", "FR", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		signup("b", "basic", "FR", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
	scores, err := Score(cohort.BuildSubscribers(events, schema.MonthGranularity), asOf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 0.0, scores[0].Risk)
}

func TestScoreIgnoresFutureSubscribers(t *testing.T) {
	events := []schema.SubscriptionEvent{
		signup("a", "basic", "FR", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	}
	scores, err := Score(cohort.BuildSubscribers(events, schema.MonthGranularity), asOf, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestTenureDays(t *testing.T) {
	subs := population()
	var cancelled, active schema.Subscriber
	for _, s := range subs {
		switch s.ID {
		case "basic-00":
			cancelled = s
		case "premium-05":
			active = s
		}
	}
	assert.InDelta(t, 60, tenureDays(cancelled, asOf), 1e-9, "Jan 1 to Mar 1 2024")
	assert.InDelta(t, 360, tenureDays(active, asOf), 1e-9, "Jan 6 to Dec 31 2024")
}

func TestEncoderRow(t *testing.T) {
	subs := population()
	enc := newEncoder(subs)
	row := enc.row(subs[0], asOf)
	require.Len(t, row, len(FeatureNames))
	assert.Equal(t, "basic-00", subs[0].ID)
	assert.Equal(t, 1.0, row[1], "location vocabulary is DE, FR")
	assert.Equal(t, 0.0, row[3], "package vocabulary is basic, premium")
	assert.Equal(t, 20.0, row[5])
}
