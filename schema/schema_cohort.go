package schema

import "time"

// Cohort groups subscribers by the period of their first subscription.
type Cohort struct {
	Key     time.Time `json:"key"`
	Members []string  `json:"members"`
	Size    int       `json:"size"`
}

// RetentionPoint is the retained fraction of a cohort at an age in periods.
// Retained is nil when the cohort had no members left at an earlier age.
type RetentionPoint struct {
	Age      int      `json:"age"`
	Retained *float64 `json:"retained"`
}

// RetentionCurve is non-increasing, within [0,1], and starts at 1.0.
type RetentionCurve struct {
	CohortKey   time.Time        `json:"cohort_key"`
	Granularity Granularity      `json:"granularity"`
	Size        int              `json:"size"`
	Points      []RetentionPoint `json:"points"`
}

// DurationPoint is the length of a subscriber's first active span.
// Censored points are still active at the end of observation.
type DurationPoint struct {
	SubscriberID string  `json:"subscriber_id"`
	Days         float64 `json:"days"`
	Censored     bool    `json:"censored"`
}

// ConversionPoint is the time from a trial or lead signal to the first paid subscription.
type ConversionPoint struct {
	SubscriberID string  `json:"subscriber_id"`
	Origin       string  `json:"origin"`
	Days         float64 `json:"days"`
}

// DistributionStats summarizes a set of day counts.
type DistributionStats struct {
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	Median float64   `json:"median"`
	P25    float64   `json:"p25"`
	P75    float64   `json:"p75"`
	Modes  []float64 `json:"modes"`
}

// DurationBucket counts subscribers surviving at least Days days.
type DurationBucket struct {
	Days      int `json:"days"`
	Surviving int `json:"surviving"`
}

// SurvivalPoint is one step of a Kaplan-Meier survival curve.
type SurvivalPoint struct {
	Days     float64 `json:"days"`
	AtRisk   int     `json:"at_risk"`
	Events   int     `json:"events"`
	Survival float64 `json:"survival"`
}

// DurationSummary describes subscription durations including censored subscribers.
type DurationSummary struct {
	Total     int               `json:"total"`
	Censored  int               `json:"censored"`
	Buckets   []DurationBucket  `json:"buckets"`
	Completed DistributionStats `json:"completed"`
	Survival  []SurvivalPoint   `json:"survival"`
}

// ConversionSummary describes conversion times from trial or lead to paid.
type ConversionSummary struct {
	Points   []ConversionPoint            `json:"points"`
	Stats    DistributionStats            `json:"stats"`
	ByOrigin map[string]DistributionStats `json:"by_origin,omitempty"`
}
