package schema

import (
	"sort"
	"time"
)

// ChurnScore is the estimated probability that a subscriber cancels.
type ChurnScore struct {
	SubscriberID string    `json:"subscriber_id"`
	AsOf         time.Time `json:"as_of"`
	Risk         float64   `json:"risk"`
	PackageTier  string    `json:"package_tier,omitempty"`
	Location     string    `json:"location,omitempty"`
}

// RankedChurnScore adds presentation data to a ChurnScore.
type RankedChurnScore struct {
	Rank  int    `json:"rank"`
	Label string `json:"label"`
	ChurnScore
}

// GetRiskLabel returns a plain text label for a churn risk in [0,1].
func GetRiskLabel(risk float64) string {
	switch {
	case risk >= 0.8:
		return "Critical"
	case risk >= 0.6:
		return "High"
	case risk >= 0.4:
		return "Moderate"
	default:
		return "Low"
	}
}

// RankChurnScores sorts scores by descending risk and adds rank and label.
func RankChurnScores(scores []ChurnScore) []RankedChurnScore {
	sorted := make([]ChurnScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Risk != sorted[j].Risk {
			return sorted[i].Risk > sorted[j].Risk
		}
		return sorted[i].SubscriberID < sorted[j].SubscriberID
	})
	output := make([]RankedChurnScore, len(sorted))
	for i, s := range sorted {
		output[i] = RankedChurnScore{
			Rank:       i + 1,
			Label:      GetRiskLabel(s.Risk),
			ChurnScore: s,
		}
	}
	return output
}

// DayVolume is the volume of one calendar day.
type DayVolume struct {
	Day   time.Time `json:"day"`
	Value float64   `json:"value"`
}

// VolumeQuery selects what a volume report adds up and how it groups events.
type VolumeQuery struct {
	Range     DateRange      `json:"range"`
	EventType EventType      `json:"event_type,omitempty"` // empty = every type
	Value     VolumeValue    `json:"value"`
	GroupBy   VolumeGrouping `json:"group_by"`
}

// VolumeReport summarizes daily volume of one calendar month or one location.
// Paid and Events count every event of the group, whatever EventType selects.
type VolumeReport struct {
	Month           time.Time   `json:"month,omitzero"`
	Location        string      `json:"location,omitempty"`
	EventType       string      `json:"event_type"`
	Value           VolumeValue `json:"value"`
	Total           float64     `json:"total"`
	AvgPerDay       float64     `json:"avg_per_day"`
	AvgPerActiveDay float64     `json:"avg_per_active_day"`
	ActiveDays      int         `json:"active_days"`
	BestDay         *DayVolume  `json:"best_day,omitempty"`
	WorstDay        *DayVolume  `json:"worst_day,omitempty"`
	Paid            int         `json:"paid"`
	Events          int         `json:"events"`
	PaidPercent     float64     `json:"paid_percent"`
}

// Group returns the month or location the report covers.
func (r VolumeReport) Group() string {
	if r.Location != "" || r.Month.IsZero() {
		return r.Location
	}
	return FormatPeriod(r.Month, MonthGranularity)
}
