package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawEvent is an event record as returned by the event store, before validation.
type RawEvent struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	EventType    string `json:"event_type" validate:"required"`
	Timestamp    string `json:"timestamp" validate:"required"`
	PackageTier  string `json:"package_tier"`
	Location     string `json:"location"`
	Amount       string `json:"amount"`
	Origin       string `json:"origin,omitempty" validate:"omitempty,oneof=trial lead"`
	OriginAt     string `json:"origin_at,omitempty" validate:"required_with=Origin"`
	RecruitMode  string `json:"recruit_mode,omitempty"`
}

// Origin marks a subscriber who came from an upstream trial or lead signal.
type Origin struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}

// SubscriptionEvent is a validated, canonical lifecycle event.
type SubscriptionEvent struct {
	SubscriberID string          `json:"subscriber_id"`
	Type         EventType       `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	PackageTier  string          `json:"package_tier"`
	Location     string          `json:"location"`
	Amount       decimal.Decimal `json:"amount"`
	Origin       *Origin         `json:"origin,omitempty"`
	RecruitMode  string          `json:"recruit_mode,omitempty"`
}

// Attribute returns the value of a dimension for this event.
func (e SubscriptionEvent) Attribute(d Dimension) string {
	switch d {
	case PackageDimension:
		return e.PackageTier
	case LocationDimension:
		return e.Location
	case TypeDimension:
		return string(e.Type)
	default:
		return ""
	}
}

// TierChange is one entry of a subscriber's package history.
type TierChange struct {
	At   time.Time `json:"at"`
	Tier string    `json:"tier"`
	Type EventType `json:"type"`
}

// ActiveSpan is a run of consecutive active periods. End is exclusive; a zero End means
// the subscriber was still active when observation ended.
type ActiveSpan struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	StartedAt   time.Time `json:"started_at"`
	CancelledAt time.Time `json:"cancelled_at"`
	Tier        string    `json:"tier"`
	OpenEnded   bool      `json:"open_ended"`
}

// Subscriber is rebuilt from events and never mutated independently.
type Subscriber struct {
	ID             string           `json:"id"`
	FirstEventAt   time.Time        `json:"first_event_at"`
	Status         SubscriberStatus `json:"status"`
	PackageHistory []TierChange     `json:"package_history"`
	Spans          []ActiveSpan     `json:"spans"`
	Origin         *Origin          `json:"origin,omitempty"`
	FirstPaidAt    time.Time        `json:"first_paid_at"`
	Location       string           `json:"location"`
	RecruitMode    string           `json:"recruit_mode"`
	LastType       EventType        `json:"last_type"`   // last activating event
	LastAmount     decimal.Decimal  `json:"last_amount"` // last positive amount paid
}

// CurrentTier returns the latest known package tier.
func (s Subscriber) CurrentTier() string {
	if len(s.PackageHistory) == 0 {
		return ""
	}
	return s.PackageHistory[len(s.PackageHistory)-1].Tier
}

// NormalizeReport counts what happened to the raw records of one normalization run.
type NormalizeReport struct {
	Total      int            `json:"total"`
	Accepted   int            `json:"accepted"`
	Rejected   int            `json:"rejected"`
	Duplicates int            `json:"duplicates"`
	Reasons    map[string]int `json:"reasons"`
}
