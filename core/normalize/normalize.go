// Package normalize turns raw event records into canonical subscription events.
package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/huangsam/subpulse/internal/contract"
	"github.com/huangsam/subpulse/internal/logging"
	"github.com/huangsam/subpulse/internal/metrics"
	"github.com/huangsam/subpulse/schema"
	"github.com/shopspring/decimal"
)

// Rejection reasons reported in NormalizeReport.Reasons.
const (
	ReasonMissingField     = "missing_field"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonUnknownType      = "unknown_type"
	ReasonInvalidAmount    = "invalid_amount"
	ReasonNegativeAmount   = "negative_amount"
	ReasonInvalidOrigin    = "invalid_origin"
)

// UnknownValue replaces an empty package tier or location.
const UnknownValue = "unknown"

var validate = validator.New(validator.WithRequiredStructEnabled())

// timestampLayouts lists the accepted timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// typeAliases maps source event type spellings onto canonical types.
var typeAliases = map[string]schema.EventType{
	"signup":     schema.SignupEvent,
	"new":        schema.SignupEvent,
	"renew":      schema.RenewEvent,
	"renewed":    schema.RenewEvent,
	"renewal":    schema.RenewEvent,
	"upgrade":    schema.UpgradeEvent,
	"upgraded":   schema.UpgradeEvent,
	"downgrade":  schema.DowngradeEvent,
	"downgraded": schema.DowngradeEvent,
	"cancel":     schema.CancelEvent,
	"cancelled":  schema.CancelEvent,
	"canceled":   schema.CancelEvent,
}

// Result is the outcome of a normalization run.
type Result struct {
	Events []schema.SubscriptionEvent
	Report schema.NormalizeReport
}

type dedupKey struct {
	subscriber string
	eventType  schema.EventType
	at         int64
}

// Normalize validates, canonicalizes, deduplicates and orders raw events.
// Invalid records are counted and skipped; they never abort the run.
func Normalize(raw []schema.RawEvent) Result {
	report := schema.NormalizeReport{Total: len(raw), Reasons: map[string]int{}}
	seen := make(map[dedupKey]struct{}, len(raw))
	events := make([]schema.SubscriptionEvent, 0, len(raw))

	for _, r := range raw {
		event, reason := canonicalize(r)
		if reason != "" {
			reject(&report, r.SubscriberID, reason)
			continue
		}
		key := dedupKey{event.SubscriberID, event.Type, event.Timestamp.UnixNano()}
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	report.Accepted = len(events)
	metrics.EventsAcceptedTotal.Add(float64(report.Accepted))
	return Result{Events: events, Report: report}
}

// reject records a rejected record in the report, the counter and the log.
func reject(report *schema.NormalizeReport, subscriberID, reason string) {
	report.Rejected++
	report.Reasons[reason]++
	metrics.EventsRejectedTotal.WithLabelValues(reason).Inc()
	err := contract.NewDataValidationError(subscriberID, reason)
	logging.Warn().Err(err).Str("subscriber", subscriberID).Str("reason", reason).Msg("event rejected")
}

// canonicalize converts one record, returning a rejection reason on failure.
func canonicalize(r schema.RawEvent) (schema.SubscriptionEvent, string) {
	r.SubscriberID = strings.TrimSpace(r.SubscriberID)
	r.EventType = strings.TrimSpace(r.EventType)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
	r.Origin = strings.ToLower(strings.TrimSpace(r.Origin))
	r.OriginAt = strings.TrimSpace(r.OriginAt)

	if err := validate.Struct(r); err != nil {
		if isOriginError(err) {
			return schema.SubscriptionEvent{}, ReasonInvalidOrigin
		}
		return schema.SubscriptionEvent{}, ReasonMissingField
	}

	ts, ok := ParseTimestamp(r.Timestamp)
	if !ok {
		return schema.SubscriptionEvent{}, ReasonInvalidTimestamp
	}

	eventType, ok := typeAliases[strings.ToLower(r.EventType)]
	if !ok {
		return schema.SubscriptionEvent{}, ReasonUnknownType
	}

	amount := decimal.Zero
	if s := strings.TrimSpace(r.Amount); s != "" {
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return schema.SubscriptionEvent{}, ReasonInvalidAmount
		}
		if parsed.IsNegative() {
			return schema.SubscriptionEvent{}, ReasonNegativeAmount
		}
		amount = parsed
	}

	event := schema.SubscriptionEvent{
		SubscriberID: r.SubscriberID,
		Type:         eventType,
		Timestamp:    ts,
		PackageTier:  orUnknown(r.PackageTier),
		Location:     orUnknown(r.Location),
		Amount:       amount,
		RecruitMode:  strings.TrimSpace(r.RecruitMode),
	}

	if r.Origin != "" {
		at, ok := ParseTimestamp(r.OriginAt)
		if !ok {
			return schema.SubscriptionEvent{}, ReasonInvalidOrigin
		}
		event.Origin = &schema.Origin{Kind: r.Origin, At: at}
	}

	return event, ""
}

// isOriginError reports whether a validation failure concerns the origin fields only.
func isOriginError(err error) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() != "Origin" && fe.Field() != "OriginAt" {
			return false
		}
	}
	return true
}

// ParseTimestamp parses any accepted timestamp format into a UTC instant.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownValue
	}
	return s
}
